// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"runtime"

	"github.com/ancapdev/crunch"
	"github.com/ancapdev/crunch/internal/clog"
	"github.com/ancapdev/crunch/internal/xatomic"
	"github.com/ancapdev/crunch/platform"
)

// Context is a reference-counted handle through which a goroutine drives
// the meta-scheduler's Schedulers, spec.md §4.8. AcquireContext returns an
// existing Context for a given key (bumping its refcount) or creates one;
// Release undoes one Acquire, tearing the Context down once the count
// reaches zero.
type Context struct {
	ms       *MetaScheduler
	key      interface{}
	refcount int
}

func newContext(ms *MetaScheduler, key interface{}) *Context {
	return &Context{ms: ms, key: key, refcount: 1}
}

// Release undoes one AcquireContext call for the same key this Context was
// acquired under.
func (c *Context) Release() {
	c.ms.releaseContext(c.key)
}

// schedulerState tracks one registered Scheduler's participation in a
// single Run call, spec.md §4.8's SchedulerState.
type schedulerState struct {
	id        string
	scheduler Scheduler
	mode      RunMode
	lastState State
	waiter    *crunch.Waiter
}

// Run is Context.run(until): it claims an idle meta-thread, drives every
// enabled Scheduler in Config round-robin (each throttled by its RunMode)
// until until fires, then tears down and returns the meta-thread to the
// idle pool. It returns once until is signaled; it never returns early for
// any other reason.
func (c *Context) Run(until crunch.Waitable) {
	var stopped xatomic.Bool32

	stateMu := &platform.Mutex{}
	stateCond := platform.NewCondition(stateMu)

	// A single waiter serves both spec.md §4.8 step 1 (wake the idle-pool
	// wait if Run is still queued for a meta-thread when until fires) and
	// step 2 (wake the state-changed cv once a meta-thread is running).
	// Consolidating the two into one waiter installed up front, rather than
	// literally deferring installation to step 2, closes the gap the
	// spec's own step-1 wording otherwise leaves open (nothing is listening
	// for until during step 1 unless something already is).
	untilWaiter := crunch.NewWaiter(func(*crunch.Waiter) {
		stopped.Store(true)
		c.ms.wakeIdleWaiters()
		stateMu.Lock()
		stateCond.WakeAll()
		stateMu.Unlock()
	})
	armed := until.AddWaiter(untilWaiter)
	if !armed {
		// until was already signaled; the callback above already ran
		// synchronously and set stopped, so there is nothing to run.
		return
	}
	defer until.RemoveWaiter(untilWaiter)

	mt, ok := c.ms.acquireIdleMetaThread(stopped.Load)
	if !ok {
		return
	}

	// Affinity is a property of an OS thread, not a goroutine; pin this
	// goroutine to the one it is currently running on for the rest of Run so
	// applyAffinity's syscall actually sticks.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	oldAffinity, affErr := mt.applyAffinity()
	if affErr != nil {
		clog.Warnf("scheduler: meta-thread %d: apply affinity: %v", mt.ID(), affErr)
	}

	states := c.buildSchedulerStates(mt)
	active := make([]*schedulerState, len(states))
	copy(active, states)
	idleSet := map[*schedulerState]bool{}
	pollingCount := 0

	// Install this Context's run delegate so a WaitModeRun caller anywhere
	// in the process (most notably, a Scheduler.Step implementation calling
	// WaitFor on something of its own) steps this Context's registered
	// schedulers once on each spin instead of issuing a pause hint,
	// spec.md §4.4/§4.8's delegation rule; it still parks once its spin
	// budget is spent.
	rd := crunch.NewRunDelegate(func(int) bool { return c.stepOthers(states) })
	crunch.SetRunDelegate(rd)
	defer crunch.SetRunDelegate(nil)

	for !stopped.Load() {
		// Move schedulers whose has-work waiter already fired back into the
		// active list. lastState is written by makeHasWorkCallback under
		// stateMu from some other goroutine, so read it under the same lock
		// here too.
		stateMu.Lock()
		for s := range idleSet {
			if s.lastState != StateIdle {
				active = append(active, s)
				delete(idleSet, s)
			}
		}
		stateMu.Unlock()

		if len(active) == 0 {
			stateMu.Lock()
			for len(active) == 0 && !stopped.Load() {
				stateCond.Wait()
				for s := range idleSet {
					if s.lastState != StateIdle {
						active = append(active, s)
						delete(idleSet, s)
					}
				}
			}
			stateMu.Unlock()
			continue
		}

		next := active[:0]
		for _, s := range active {
			prev := s.lastState
			st := s.mode.driver(s.scheduler, stopped.Load)
			s.lastState = st

			if prev == StatePolling && st != StatePolling {
				pollingCount--
			}
			if prev != StatePolling && st == StatePolling {
				pollingCount++
			}

			if st == StateIdle {
				if s.waiter == nil {
					s.waiter = crunch.NewWaiter(c.makeHasWorkCallback(s, stateMu, stateCond))
				}
				if !s.scheduler.HasWork().AddWaiter(s.waiter) {
					// Already has work again; stay active.
					s.lastState = StateWorking
					s.waiter = nil
					next = append(next, s)
					continue
				}
				idleSet[s] = true
				continue
			}
			next = append(next, s)
		}
		active = next

		c.ms.metrics.PollingSchedulers.Set(float64(pollingCount))

		if len(active) > 0 && len(active) == pollingCount {
			platform.PauseHint()
			platform.Yield()
		}
	}

	c.teardown(states, idleSet, stateMu)
	if _, err := platform.SetThreadAffinity(oldAffinity); err != nil {
		clog.Warnf("scheduler: meta-thread %d: restore affinity: %v", mt.ID(), err)
	}
	c.ms.releaseMetaThread(mt)
}

func (c *Context) buildSchedulerStates(mt *MetaThread) []*schedulerState {
	ids := c.ms.config.snapshot()
	states := make([]*schedulerState, 0, len(ids))
	for _, id := range ids {
		entry, ok := c.ms.config.lookup(id)
		if !ok {
			continue
		}
		mode := mt.config.runMode(id, entry.mode)
		if mode.disabled() {
			continue
		}
		states = append(states, &schedulerState{
			id:        id,
			scheduler: entry.scheduler,
			mode:      mode,
			lastState: StateWorking,
		})
	}
	return states
}

// stepOthers is this Context's RunDelegate.runOne: it gives every registered
// scheduler one bounded Step, bypassing each one's own RunMode throttling
// (this is a single cooperative step taken while some other goroutine's
// WaitModeRun wait spins, not a turn of Run's own throttled loop), and
// reports whether any of them did work. It intentionally does not touch
// lastState/idleSet/stateCond bookkeeping; that remains Run's main loop's
// job, so a scheduler that only ever makes progress via delegation still
// gets its idle/active state reconciled the next time Run's loop runs it.
func (c *Context) stepOthers(states []*schedulerState) bool {
	ranSomething := false
	for _, s := range states {
		if s.scheduler.Step() == StateWorking {
			ranSomething = true
		}
	}
	return ranSomething
}

// makeHasWorkCallback builds the callback installed on a scheduler's
// HasWork waitable while it is idle: it flips the scheduler's recorded
// state to Working and wakes Run's state-changed cv so the main loop
// notices on its next pass.
func (c *Context) makeHasWorkCallback(s *schedulerState, stateMu *platform.Mutex, stateCond *platform.Condition) func(*crunch.Waiter) {
	return func(*crunch.Waiter) {
		stateMu.Lock()
		s.lastState = StateWorking
		stateCond.WakeAll()
		stateMu.Unlock()
	}
}

// teardown implements spec.md §4.8 step 6: every idle scheduler's has-work
// waiter is removed; if removal fails (the callback already fired or is in
// flight), wait for lastState to leave StateIdle before moving on, since the
// callback may still be executing against a schedulerState Run is about to
// discard.
func (c *Context) teardown(states []*schedulerState, idleSet map[*schedulerState]bool, stateMu *platform.Mutex) {
	isIdle := func(s *schedulerState) bool {
		stateMu.Lock()
		defer stateMu.Unlock()
		return s.lastState == StateIdle
	}
	for s := range idleSet {
		if s.waiter == nil {
			continue
		}
		if s.scheduler.HasWork().RemoveWaiter(s.waiter) {
			continue
		}
		for i := 0; i < 1<<20 && isIdle(s); i++ {
			// Spin briefly; the callback that beat RemoveWaiter to the punch
			// does negligible work (set a field, broadcast a cv).
		}
	}
}
