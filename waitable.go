// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ancapdev/crunch/platform"
)

// Waitable is the generic contract spec.md §4.3 builds WaitFor, WaitForAll,
// and WaitForAny on top of. Event, Mutex, and Semaphore all implement it;
// any user type with its own notion of "ready" can too, by embedding a
// waiterWord of its own or otherwise satisfying this contract directly.
type Waitable interface {
	// AddWaiter installs w to be run when the waitable becomes ready. If it
	// is already ready, AddWaiter runs w synchronously before returning and
	// reports false (there is nothing left to wait for); otherwise it queues
	// w and reports true (w is armed and its callback will run later, on
	// some other goroutine's wake). A false return can also mean AddWaiter
	// lost a race with the goroutine making the waitable ready; that
	// goroutine then runs w's callback, possibly after AddWaiter returned.
	AddWaiter(w *Waiter) bool

	// RemoveWaiter undoes a prior AddWaiter, reporting whether w was found
	// and removed before it ran. A false return means w's callback has
	// already run (or is in the process of running) on another goroutine.
	RemoveWaiter(w *Waiter) bool

	// IsOrderDependent reports whether acquiring this waitable is an
	// exclusive, order-sensitive operation (Mutex, Semaphore) as opposed to
	// a pure readiness signal with no acquire side effect (Event).
	// WaitForAll uses this to decide which waitables need a fixed,
	// deadlock-avoiding install order.
	IsOrderDependent() bool
}

// RunMode controls what a blocked wait does with the calling goroutine
// while it waits, spec.md §4.3/§5's wait_mode_t.
type RunMode int

const (
	// runModePoll never blocks: a single readiness check, no spin, no wait.
	runModePoll RunMode = iota
	// runModeBlock spins up to a configured count before parking.
	runModeBlock
	// runModeRun spins up to a configured count; while a RunDelegate is
	// installed, each spin steps that scheduler.Context's schedulers instead
	// of issuing a pause hint. Once the spins are spent it parks, like
	// runModeBlock.
	runModeRun
)

// WaitMode bundles a RunMode with the spin budget WaitFor/WaitForAll/
// WaitForAny use before falling back to parking (or scheduling other work,
// under WaitModeRun).
type WaitMode struct {
	mode      RunMode
	spinCount int
}

// WaitModePoll never blocks past a single check.
func WaitModePoll() WaitMode { return WaitMode{mode: runModePoll} }

// WaitModeBlock spins up to spinCount times before parking the goroutine.
func WaitModeBlock(spinCount int) WaitMode { return WaitMode{mode: runModeBlock, spinCount: spinCount} }

// WaitModeRun spins up to spinCount times; while a scheduler.Context's
// RunDelegate is installed, each spin gives that Context's registered
// schedulers one Step each in place of a pause hint. Once the spins are
// spent it parks the goroutine, as WaitModeBlock does; it does not keep
// running schedulers until woken. With no RunDelegate installed it behaves
// exactly like WaitModeBlock.
func WaitModeRun(spinCount int) WaitMode { return WaitMode{mode: runModeRun, spinCount: spinCount} }

// RunDelegate is what WaitFor reuses when the calling goroutine is
// currently inside a scheduler.Context's Run loop, spec.md §4.4's "if
// current thread has a meta-scheduler context, delegate to it (reuses the
// context's persistent waiter and semaphore)" and §3's Context{wait_
// semaphore, persistent_waiter} fields. Context.Run installs one via
// SetRunDelegate for the lifetime of its loop and clears it on return.
//
// It is deliberately a single package-level slot rather than something
// threaded through every call, because Go's goroutines have no built-in
// "current scheduler Context" the way a C++ thread-local would: this is the
// same limitation SPEC_FULL.md §5 discusses, and it means two Context.Run
// loops active concurrently on different goroutines share one delegate
// slot rather than each getting their own. A single MetaScheduler driving
// one Run loop at a time — the configuration every test and the demo
// binary in this module use — is unaffected.
var currentRunDelegate *RunDelegate

// RunDelegate bundles the cooperative-run hook with the persistent waiter
// and semaphore a delegated WaitFor call reuses instead of allocating a
// fresh channel and transient waiter per call. mu serializes use of waiter
// and sem: a real per-thread context gets "only one WaitFor outstanding at
// a time" for free from thread affinity; this port has no such affinity to
// rely on (currentRunDelegate is one process-wide slot, not one per
// goroutine), so the invariant is enforced with a lock instead.
type RunDelegate struct {
	runOne func(spinsRemaining int) (ranSomething bool)
	sem    *platform.Semaphore
	waiter *Waiter
	mu     sync.Mutex
}

// NewRunDelegate returns a RunDelegate backed by its own persistent waiter
// and semaphore (spec.md §3's Context.wait_semaphore/persistent_waiter).
// runOne is called on each spin once the initial AddWaiter did not resolve
// synchronously, to let a WaitModeRun caller make progress on some other
// registered scheduler instead of spinning idle.
func NewRunDelegate(runOne func(spinsRemaining int) (ranSomething bool)) *RunDelegate {
	rd := &RunDelegate{runOne: runOne, sem: platform.NewSemaphore()}
	rd.waiter = &Waiter{}
	return rd
}

// SetRunDelegate installs (or, with nil, clears) the process-wide run
// delegate; it is not tied to the calling goroutine. Not intended for direct
// use outside the scheduler package.
func SetRunDelegate(rd *RunDelegate) {
	currentRunDelegate = rd
}

// WaitFor blocks according to mode until w is ready, then returns. It is
// the primitive every other combinator in this file is built from.
//
// If a RunDelegate is installed (the slot is process-wide, not per
// goroutine) and mode is not WaitModePoll, WaitFor delegates to it per
// spec.md §4.4 instead of allocating an ad-hoc channel and transient waiter.
func WaitFor(w Waitable, mode WaitMode) {
	if rd := currentRunDelegate; rd != nil && mode.mode != runModePoll {
		waitForDelegate(w, mode, rd)
		return
	}
	done := make(chan struct{})
	waiter := newTransientWaiter(func(*Waiter) { close(done) })
	if !w.AddWaiter(waiter) {
		return
	}
	if waitSpin(done, mode) {
		return
	}
	if mode.mode == runModePoll {
		w.RemoveWaiter(waiter)
		return
	}
	<-done
}

// waitForDelegate is WaitFor's delegation path. rd.waiter is rearmed on
// every call (Waiter.run clears its callback after firing, spec.md §3's
// "callback invoked at most once") since a Context's persistent waiter is
// reused across many sequential WaitFor calls, never two at once — a
// Context drives exactly one logical thread of control; rd.mu enforces
// that here since nothing else does.
func waitForDelegate(w Waitable, mode WaitMode, rd *RunDelegate) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	// Drain any post left over from a previous use (a callback that ran
	// after its call had already returned) before rearming.
	for rd.sem.TryWait() {
	}

	rd.waiter.next = nil
	rd.waiter.isTransient = false
	rd.waiter.callback = func(*Waiter) { rd.sem.Post() }

	if !w.AddWaiter(rd.waiter) {
		// Satisfied: the callback above has run (or is being run by the
		// goroutine that made w ready) and posts rd.sem once. Drain that post
		// now if it has landed; one that lands later is drained at the start
		// of the next delegated wait.
		rd.sem.TryWait()
		return
	}
	for i := 0; i < mode.spinCount; i++ {
		if rd.sem.TryWait() {
			return
		}
		if mode.mode == runModeRun && rd.runOne != nil {
			rd.runOne(mode.spinCount - i)
		} else {
			platform.PauseHint()
		}
	}
	rd.sem.Wait()
}

// waitSpin busy-waits up to mode's spin budget for done to close, reporting
// whether it closed. Under WaitModeRun, if a RunDelegate is installed, it
// additionally gives that delegate's cooperative
// scheduler hook a chance to make progress on each spin instead of issuing
// a pure processor pause hint; used by the multi-waitable combinators below
// that cannot reuse a single persistent waiter the way WaitFor itself does.
func waitSpin(done <-chan struct{}, mode WaitMode) bool {
	for i := 0; i < mode.spinCount; i++ {
		select {
		case <-done:
			return true
		default:
		}
		if rd := currentRunDelegate; mode.mode == runModeRun && rd != nil && rd.runOne != nil {
			rd.runOne(mode.spinCount - i)
		} else {
			platform.PauseHint()
		}
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// WaitForAll blocks until every waitable in ws is ready, installing
// order-dependent waitables (Mutex, Semaphore) in a fixed, pointer-identity
// order first and waiting on each sequentially — spec.md §9's adopted
// resolution of the "install all vs. one at a time" Open Question: avoiding
// a fixed order for order-dependent waitables is what lets two goroutines
// calling WaitForAll on the same two locks in different argument order
// deadlock, so WaitForAll removes that degree of freedom instead of relying
// on callers to agree on an order themselves. Order-independent waitables
// (Event) carry no such risk and are installed together, all at once.
func WaitForAll(mode WaitMode, ws ...Waitable) {
	var ordered, unordered []Waitable
	for _, w := range ws {
		if w.IsOrderDependent() {
			ordered = append(ordered, w)
		} else {
			unordered = append(unordered, w)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return waitableIdentity(ordered[i]) < waitableIdentity(ordered[j])
	})
	for _, w := range ordered {
		WaitFor(w, mode)
	}
	if len(unordered) == 0 {
		return
	}
	waitForAllUnordered(mode, unordered)
}

func waitForAllUnordered(mode WaitMode, ws []Waitable) {
	remaining := int64(len(ws))
	done := make(chan struct{})
	waiters := make([]*Waiter, len(ws))
	for i, w := range ws {
		i, w := i, w
		waiters[i] = newTransientWaiter(func(*Waiter) {
			if atomic.AddInt64(&remaining, -1) == 0 {
				close(done)
			}
		})
		w.AddWaiter(waiters[i])
	}
	if waitSpin(done, mode) {
		return
	}
	if mode.mode == runModePoll {
		for i, w := range ws {
			w.RemoveWaiter(waiters[i])
		}
		return
	}
	<-done
}

// WaitForAny blocks until at least one waitable in ws is ready, returning
// its index. If more than one becomes ready concurrently, the excess
// wakeups are drained (their waiters removed) rather than left to fire
// spuriously against a caller who already moved on.
func WaitForAny(mode WaitMode, ws ...Waitable) int {
	results := make(chan winner, len(ws))
	waiters := make([]*Waiter, len(ws))
	for i, w := range ws {
		i := i
		waiters[i] = newTransientWaiter(func(*Waiter) {
			results <- winner{index: i}
		})
		if !w.AddWaiter(waiters[i]) {
			return drainWaitForAny(ws, waiters, i, results)
		}
	}
	if waitSpinAny(results, mode) {
		w := <-results
		return drainWaitForAny(ws, waiters, w.index, results)
	}
	if mode.mode == runModePoll {
		for i, w := range ws {
			w.RemoveWaiter(waiters[i])
		}
		return -1
	}
	w := <-results
	return drainWaitForAny(ws, waiters, w.index, results)
}

func waitSpinAny(results chan winner, mode WaitMode) bool {
	for i := 0; i < mode.spinCount; i++ {
		select {
		case w := <-results:
			results <- w
			return true
		default:
		}
		if rd := currentRunDelegate; mode.mode == runModeRun && rd != nil && rd.runOne != nil {
			rd.runOne(mode.spinCount - i)
		} else {
			platform.PauseHint()
		}
	}
	return false
}

// drainWaitForAny removes the still-pending waiters for every waitable
// other than the winner, so a waitable that becomes ready moments after the
// winner does not enqueue a callback nobody will ever read.
func drainWaitForAny(ws []Waitable, waiters []*Waiter, winnerIndex int, results chan winner) int {
	for i, w := range ws {
		// waiters[i] is nil for waitables WaitForAny never reached because an
		// earlier one was already ready.
		if i == winnerIndex || waiters[i] == nil {
			continue
		}
		w.RemoveWaiter(waiters[i])
	}
drain:
	for {
		select {
		case <-results:
		default:
			break drain
		}
	}
	return winnerIndex
}

type winner struct {
	index int
}

// waitableIdentity gives WaitForAll a total, stable order over Waitables to
// install order-dependent waiters in, regardless of the order a caller
// happened to list them in: the address of the concrete value an interface
// wraps. It is only called on order-dependent waitables, and both of those
// in this package (Mutex, Semaphore) are pointer types, so
// reflect.Value.Pointer reports the address of the underlying Mutex/
// Semaphore, which is stable for the object's lifetime — exactly the
// "pointer identity" spec.md §4.3 specifies for this ordering.
func waitableIdentity(w Waitable) uintptr {
	return reflect.ValueOf(w).Pointer()
}
