// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler implements the meta-scheduler, spec.md §4.8: a bounded
// pool of meta-threads that cooperatively multiplex any number of registered
// Scheduler implementations, each throttled by its own RunMode.
package scheduler

import (
	"time"

	"github.com/ancapdev/crunch"
	"github.com/ancapdev/crunch/platform"
)

// State is the result of one throttled run of a Scheduler, spec.md §4.8's
// SchedulerState.last_state.
type State int

const (
	// StateIdle: the scheduler found no work and installed a waiter on its
	// HasWork waitable; it will not be polled again until that waiter fires.
	StateIdle State = iota
	// StateWorking: the scheduler is actively processing items.
	StateWorking
	// StatePolling: the scheduler checked for work, found none, but expects
	// to need checking again soon (e.g. it owns an external fd/timer) rather
	// than being able to rely on a HasWork waiter.
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Scheduler is a cooperative unit of work the meta-scheduler multiplexes
// onto a meta-thread alongside other Schedulers.
type Scheduler interface {
	// Step performs a single throttled unit of work and reports the
	// resulting State. It must not block.
	Step() State

	// HasWork returns the Waitable a StateIdle result should be re-armed
	// against: once it fires, the scheduler is moved back to the active
	// list and Step is called again.
	HasWork() crunch.Waitable
}

// RunMode is the meta-scheduler's own throttle policy, spec.md §4.8's
// tagged union {Disabled | Some(n) | Timed(d) | All}, distinct from
// crunch.WaitMode (which throttles a single WaitFor call rather than a
// whole scheduler's share of a meta-thread).
type RunMode struct {
	kind runModeKind
	n    int
	d    time.Duration
}

type runModeKind int

const (
	runModeDisabled runModeKind = iota
	runModeSome
	runModeTimed
	runModeAll
)

// Disabled excludes a scheduler from the active list entirely.
func Disabled() RunMode { return RunMode{kind: runModeDisabled} }

// Some throttles a scheduler to n Step calls per turn before yielding the
// meta-thread to the next scheduler.
func Some(n int) RunMode { return RunMode{kind: runModeSome, n: n} }

// Timed throttles a scheduler to wall-clock duration d of Step calls per
// turn.
func Timed(d time.Duration) RunMode { return RunMode{kind: runModeTimed, d: d} }

// All never yields the meta-thread voluntarily; the scheduler keeps running
// until it reports StateIdle/StatePolling on its own or the meta-thread is
// stopped.
func All() RunMode { return RunMode{kind: runModeAll} }

// driver runs Step calls against a Scheduler subject to this RunMode's
// throttle, returning the last State reported (or, if the meta-thread was
// stopped mid-run, StateWorking so the caller re-checks stop immediately
// rather than mistakenly re-arming a HasWork waiter).
func (m RunMode) driver(s Scheduler, stopped func() bool) State {
	switch m.kind {
	case runModeAll:
		for {
			if stopped() {
				return StateWorking
			}
			if st := s.Step(); st != StateWorking {
				return st
			}
		}
	case runModeSome:
		n := m.n
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if stopped() {
				return StateWorking
			}
			if st := s.Step(); st != StateWorking {
				return st
			}
		}
		return StateWorking
	case runModeTimed:
		deadline := platform.MonotonicNow().Add(m.d)
		for platform.MonotonicNow().Before(deadline) {
			if stopped() {
				return StateWorking
			}
			if st := s.Step(); st != StateWorking {
				return st
			}
		}
		return StateWorking
	default:
		return StateIdle
	}
}

// disabled reports whether this RunMode excludes its scheduler from the
// active list.
func (m RunMode) disabled() bool {
	return m.kind == runModeDisabled
}
