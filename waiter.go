// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import "sync"

// Waiter is the intrusive record every waitable's list is built from, exactly
// spec.md §3's Waiter: a next pointer, a callback invoked at most once, and a
// transience flag. The callback must be idempotent against "remove raced
// with notify": only one of {a remove_waiter call, the list owner's notify}
// ever succeeds for a given waiter, and the loser observes false/absence —
// callers never call Waiter's callback themselves, only the primitives'
// notify paths (event.go, mutex.go, semaphore.go) do, so this invariant is
// enforced structurally rather than by convention at each call site.
//
// Go closures already provide the type erasure spec.md §4.2/§9 discusses
// achieving via a bounded inline-storage slot in the C++ original: a
// func(*Waiter) value is a single word plus a pointer to its (heap-allocated,
// GC-managed) capture frame, so there is no fixed-byte-budget decision to
// make the way there is in an unmanaged language. Pooling *Waiter structs
// still amortizes the allocation of the Waiter struct itself to zero on the
// hot path once the free-list has warmed up, which is the functional intent
// behind the spec's "fixed-size cells" contract.
type Waiter struct {
	next        *Waiter
	callback    func(w *Waiter)
	isTransient bool
}

// run invokes the waiter's callback exactly once. Only called by the notify
// and add paths of Event/Mutex/Semaphore, never directly by their users or
// by WaitFor.
func (w *Waiter) run() {
	cb := w.callback
	w.callback = nil
	if cb != nil {
		cb(w)
	}
}

// NewWaiter returns a persistent Waiter running callback, for packages
// outside crunch that need to install their own long-lived waiter on a
// Waitable (scheduler.Context's until-waiter and per-scheduler has-work
// waiters use it in this module). Persistent waiters bypass the free-list allocator entirely
// — they are one-off per call site, not a hot-path allocation — and are
// simply left for the garbage collector once nothing references them.
func NewWaiter(callback func(w *Waiter)) *Waiter {
	return &Waiter{callback: callback}
}

// newTransientWaiter returns a waiter that destroys itself (returns to the
// allocator) once its callback has run, used by ad-hoc WaitFor/WaitForAll/
// WaitForAny call sites that do not keep a persistent waiter around across
// calls the way a scheduler Context does.
func newTransientWaiter(callback func(w *Waiter)) *Waiter {
	w := allocWaiter()
	w.callback = callback
	w.isTransient = true
	return w
}

// selfDestructIfTransient returns the waiter to the allocator if it is
// transient; persistent waiters (owned by a scheduler Context) are left
// alone for reuse by their owner.
func (w *Waiter) selfDestructIfTransient() {
	if w.isTransient {
		freeWaiter(w)
	}
}

// --------------------------------------------------------------------
// Allocator
//
// spec.md §4.2 describes three tiers: a thread-local free-list, a process-
// wide lock-free stack, and fresh allocation recorded in a vector for
// destructor-time reclamation. Go has no portable thread-local storage, so
// this port collapses the first two tiers into one: the process-wide
// lock-free Stack[Waiter] (stack.go) serves every goroutine directly. This
// is a deliberate simplification, recorded in DESIGN.md, not an oversight —
// Go's goroutines are already cheap enough, and scheduled finely enough
// across Ps, that a true per-P cache would mostly just be re-deriving what
// Go's own runtime allocator cache already gives sync.Pool-style code, at
// the cost of unsafe TLS emulation this module has no other need for.
//
// Fresh allocations are recorded into allocations, an append-only slice that
// exists purely to keep every Waiter ever allocated reachable for the life
// of the process: the whole point of the lock-free free-list is that a
// losing CAS may still dereference a popped node after another thread has
// already reused it, so nodes may never be handed back to the Go garbage
// collector (spec.md's own accepted-leak non-goal, §4.2).
// --------------------------------------------------------------------

var (
	freeWaiters = NewStack(
		func(w *Waiter) *Waiter { return w.next },
		func(w *Waiter, next *Waiter) { w.next = next },
	)

	allocationsMu sync.Mutex
	allocations   []*Waiter
)

func allocWaiter() *Waiter {
	if w, ok := freeWaiters.Pop(); ok {
		w.next = nil
		w.isTransient = false
		return w
	}
	w := &Waiter{}
	allocationsMu.Lock()
	allocations = append(allocations, w)
	allocationsMu.Unlock()
	return w
}

func freeWaiter(w *Waiter) {
	w.callback = nil
	w.isTransient = false
	freeWaiters.Push(w)
}
