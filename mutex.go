// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

// Mutex is a non-reentrant, LIFO (unfair) mutual-exclusion lock built on
// waiterWord, spec.md §4.5. userFlagBit means "locked"; the list holds
// threads blocked in Lock, most-recently-queued first. Unlock hands
// ownership directly to the head of the list, the most recently queued
// thread, rather than merely clearing the flag and letting everyone race
// again, so a fresh arrival never wins the flag out from under a queued
// thread; among the queued threads, the one that has waited longest is
// served last and can be starved. The handoff has the same shape as
// waiterWord.popHead, with the flag kept set across it; only an empty list
// clears the flag.
//
// This is a deliberate LIFO departure from the teacher's own nsync.Mu, which
// is FIFO via its dll-based waiter queue; spec.md's Mutex is explicitly
// LIFO (its test scenario locks T1, T2, T3 in order and expects wakeup order
// T3, T2, T1), so this port does not carry nsync's FIFO discipline over.
type Mutex struct {
	word waiterWord
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// TryLock attempts to acquire the lock without blocking, reporting success.
func (m *Mutex) TryLock() bool {
	old := m.word.load()
	head, flags, aba := wordUnpack(old)
	if flags&wordUserFlagBit != 0 {
		return false
	}
	next := wordPack(head, flags|wordUserFlagBit, aba+1)
	return m.word.cas(old, next)
}

// Lock blocks until the mutex is held by the calling goroutine.
func (m *Mutex) Lock() {
	done := make(chan struct{})
	w := newTransientWaiter(func(*Waiter) { close(done) })
	if !m.AddWaiter(w) {
		return
	}
	<-done
}

// Unlock releases the mutex, the realization of spec.md §4.5's pop_waiter
// hand-off: if another goroutine is queued, ownership passes directly to it
// (the flag stays set) without ever becoming visible as unlocked; only when
// the queue is empty does Unlock actually clear the flag.
//
// Unlock does not verify that the caller is the current holder — matching
// the teacher's own AssertHeld-as-a-separate-call convention (nsync.Mu),
// this module leaves that check to callers that want it rather than paying
// for owner tracking on every lock/unlock pair.
func (m *Mutex) Unlock() {
	bo := defaultBackoff()
	for {
		old := m.word.load()
		head, flags, aba := wordUnpack(old)
		if flags&wordLockBit != 0 {
			// A RemoveWaiter is walking the list; the head must stay put.
			bo.Pause()
			continue
		}
		if head != nil {
			next := wordPack(head.next, flags, aba+1)
			if m.word.cas(old, next) {
				head.next = nil
				head.run()
				head.selfDestructIfTransient()
				return
			}
			bo.Pause()
			continue
		}
		newFlags := flags &^ wordUserFlagBit
		unlocked := wordPack(nil, newFlags, aba+1)
		if m.word.cas(old, unlocked) {
			return
		}
		bo.Pause()
	}
}

// AddWaiter implements Waitable: it attempts to acquire the lock on w's
// behalf, running w's callback synchronously and reporting false if
// uncontended, or queuing w and reporting true if another goroutine
// currently holds the lock (spec.md §4.4/§8: true iff armed for a later
// wake, false iff already satisfied synchronously).
func (m *Mutex) AddWaiter(w *Waiter) bool {
	bo := defaultBackoff()
	if !m.word.testAndSetUserFlag(true, bo) {
		w.run()
		return false
	}
	m.word.AddWaiter(w, bo)
	if !m.word.userFlag() {
		// Unlock cleared the flag after we observed it set but before we
		// published our waiter: nobody will ever pop us, so claim the lock
		// ourselves instead of waiting for a wakeup that cannot come.
		if m.word.RemoveWaiter(w, bo) {
			return m.AddWaiter(w)
		}
		// Lost the removal race too: Unlock's own pop already found us and
		// is running (or has run) our callback on its behalf.
		return false
	}
	return true
}

// RemoveWaiter implements Waitable.
func (m *Mutex) RemoveWaiter(w *Waiter) bool {
	return m.word.RemoveWaiter(w, defaultBackoff())
}

// IsOrderDependent implements Waitable. Acquiring two mutexes via
// WaitForAll in different orders on different goroutines can deadlock, so
// WaitForAll must install Mutex waiters in a fixed, pointer-identity order
// (waitable.go) rather than in caller-supplied order.
func (m *Mutex) IsOrderDependent() bool {
	return true
}
