// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import "sync/atomic"

// Semaphore is a counting semaphore, spec.md §4.5: Post releases one permit,
// Wait consumes one, blocking while none are available. Grounded on the Go
// runtime's own semaphore (other_examples/.../runtime-sema.go's cansemacquire/
// semrelease), which resolves the same "handoff vs. bump a counter" duality
// this type needs: Post always prefers handing a permit directly to a
// waiter already queued in word over incrementing count, since a waiter
// already parked on its done channel will not re-observe count on its own.
//
// count and word are two independent sources of truth for "is a permit
// available" — a genuine permit sitting in count, or a genuine waiter
// sitting in word waiting for one — and AddWaiter's job after queuing a
// waiter is to make sure it never ends up charged against both at once (see
// the give-back in AddWaiter below).
type Semaphore struct {
	count int64
	word  waiterWord
}

// NewSemaphore returns a Semaphore initialized with the given number of
// immediately available permits.
func NewSemaphore(initial int64) *Semaphore {
	return &Semaphore{count: initial}
}

// TryWait consumes one permit without blocking, reporting success.
func (s *Semaphore) TryWait() bool {
	for {
		c := atomic.LoadInt64(&s.count)
		if c <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.count, c, c-1) {
			return true
		}
	}
}

// Post releases one permit, waking the most recently queued waiter if any
// (waiterWord's list is LIFO, same as Mutex), or else making the permit
// available to a future Wait/TryWait.
func (s *Semaphore) Post() {
	bo := defaultBackoff()
	if w := s.word.popHead(bo); w != nil {
		w.run()
		w.selfDestructIfTransient()
		return
	}
	atomic.AddInt64(&s.count, 1)
}

// Wait blocks until a permit is available, then consumes it.
func (s *Semaphore) Wait() {
	done := make(chan struct{})
	w := newTransientWaiter(func(*Waiter) { close(done) })
	if !s.AddWaiter(w) {
		return
	}
	<-done
}

// AddWaiter implements Waitable: it consumes a permit on w's behalf,
// running w's callback synchronously and reporting false if one is already
// available, or queues w and reports true otherwise (spec.md §4.4/§8: true
// iff armed for a later wake, false iff already satisfied synchronously).
func (s *Semaphore) AddWaiter(w *Waiter) bool {
	if s.TryWait() {
		w.run()
		return false
	}
	bo := defaultBackoff()
	s.word.AddWaiter(w, bo)
	if s.TryWait() {
		// A permit appeared after we queued (a concurrent Post bumped count
		// rather than finding us in the list). Try to claim it ourselves;
		if s.word.RemoveWaiter(w, bo) {
			w.run()
			return false
		}
		// We lost the removal race: some Post already popped w directly and
		// is about to (or just did) run its callback. The permit we just
		// took via TryWait belongs to a different, still-queued waiter, not
		// to w, so give it back rather than double-spend it.
		atomic.AddInt64(&s.count, 1)
		return false
	}
	return true
}

// RemoveWaiter implements Waitable.
func (s *Semaphore) RemoveWaiter(w *Waiter) bool {
	return s.word.RemoveWaiter(w, defaultBackoff())
}

// IsOrderDependent implements Waitable. Permits are a shared, order-
// sensitive resource: waiting on two semaphores via WaitForAll in
// inconsistent orders across goroutines can deadlock the same way two
// mutexes can.
func (s *Semaphore) IsOrderDependent() bool {
	return true
}
