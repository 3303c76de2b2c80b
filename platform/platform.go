// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform provides the OS-level collaborators that spec.md §1 and
// §6 declare out of scope for the concurrency core but consumed by it:
// a counting semaphore, a manual-reset event, a mutex/condition pair,
// processor affinity, a pause/yield hint, and a monotonic clock.
//
// None of these need to be true OS primitives in Go: goroutines are already
// multiplexed onto OS threads by the runtime, so "SystemSemaphore" etc. are
// realized directly on sync/channels rather than wrapping pthreads or
// Win32 handles, the way the teacher's own nsync package built its
// binarySemaphore on a buffered channel instead of a platform semaphore.
package platform

import (
	"runtime"
	"sync"
	"time"
)

// Semaphore is a counting OS-style semaphore used to block a waiting
// goroutine until some other goroutine signals it. It is the blocking
// primitive a delegated WaitFor (crunch.RunDelegate) parks on; the
// meta-scheduler's idle loop waits on a Condition instead, and the
// lock-free waiter list (crunch.waiterWord) never blocks by itself.
//
// Grounded on nsync's binarySemaphore (v.io/x/lib/nsync/binary_semaphore.go),
// generalized from a 0/1 binary semaphore to a counting one backed by a
// buffered channel of the requested capacity, since the spec's Semaphore
// primitive (§4.5) needs an arbitrary non-negative count, not just 0/1.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns a semaphore with count 0.
func NewSemaphore() *Semaphore {
	// A count of up to 1<<20 in flight is far beyond any realistic number of
	// parked waiters on a single primitive; the channel only ever needs to
	// hold as many tokens as there are outstanding Post calls not yet
	// matched by a Wait.
	return &Semaphore{ch: make(chan struct{}, 1<<20)}
}

// Post increments the semaphore's count, waking one waiter if any is parked.
func (s *Semaphore) Post() {
	s.ch <- struct{}{}
}

// Wait blocks until the count is positive, then decrements it.
func (s *Semaphore) Wait() {
	<-s.ch
}

// TryWait decrements the count without blocking if it is positive, reporting
// whether it did so.
func (s *Semaphore) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// SpinWait tries TryWait up to n times with a pause hint between attempts
// before giving up; it does not fall back to a blocking Wait itself (the
// caller decides whether to do that), matching spec.md §4.4's description of
// SystemSemaphore.spin_wait as a pure spin-then-report primitive.
func (s *Semaphore) SpinWait(n int) bool {
	for i := 0; i < n; i++ {
		if s.TryWait() {
			return true
		}
		PauseHint()
	}
	return false
}

// Event is a manual-reset event: Set latches true and wakes every waiter
// currently blocked in Wait; subsequent Wait calls return immediately until
// Reset. Distinct from crunch.Event (package crunch's lock-free waitable,
// which is what Context.run's "until" argument actually uses): this one is
// a plain sync.Cond-backed gate for platform-layer and test code that wants
// a one-shot signal without pulling in the waiter-list machinery.
type Event struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

func NewEvent() *Event {
	e := &Event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *Event) Set() {
	e.mu.Lock()
	e.set = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *Event) Reset() {
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

func (e *Event) Wait() {
	e.mu.Lock()
	for !e.set {
		e.cond.Wait()
	}
	e.mu.Unlock()
}

// Mutex and Condition are thin re-exports of sync.Mutex/sync.Cond under the
// names spec.md §6 gives the platform collaborators, so call sites in this
// module read as implementing the spec's named interfaces rather than
// reaching into "sync" directly.
type Mutex = sync.Mutex

type Condition struct {
	cond *sync.Cond
}

func NewCondition(mu *Mutex) *Condition {
	return &Condition{cond: sync.NewCond(mu)}
}

func (c *Condition) Wait()    { c.cond.Wait() }
func (c *Condition) WakeOne() { c.cond.Signal() }
func (c *Condition) WakeAll() { c.cond.Broadcast() }

// PauseHint yields a short hint to the processor that the caller is in a
// spin loop. Go has no portable PAUSE-instruction intrinsic in the standard
// library, so this is realized as runtime.Gosched, the same call Yield
// makes; it exists so call sites read the same way the spec's pause_hint() does,
// and so that a future build-tagged assembly implementation (as the teacher
// does for per-platform code, e.g. its old ipaux_linux.go/ipaux_bsd.go split)
// has a single seam to hang off.
func PauseHint() {
	runtime.Gosched()
}

// Yield hands the processor to another goroutine/OS thread, used when a
// backoff policy has given up on spinning.
func Yield() {
	runtime.Gosched()
}

// MonotonicNow returns a monotonic instant suitable for measuring elapsed
// durations (time.Since works correctly against it). Go's time.Now() already
// carries a monotonic reading internally, so this is a direct pass-through;
// the wrapper exists so RunTimed throttlers (scheduler package) depend on
// platform.MonotonicNow rather than time.Now directly, the same indirection
// the teacher's timing package used (a package-level nowFunc var) to keep
// clock access swappable in tests.
var MonotonicNow = time.Now
