// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

// Event is a manual-reset event, spec.md §4.5: Set wakes every thread
// currently waiting and every thread that calls Wait afterward returns
// immediately, until Reset clears it again. Built directly on waiterWord's
// userFlagBit ("signaled") and claimAllLocked ("wake everyone currently
// queued"), rather than wrapping platform.Event — this module's Event is the
// one spec.md §4.5 actually specifies waiter-list semantics for (AddWaiter/
// RemoveWaiter/IsOrderDependent), whereas platform.Event is purely an
// internal building block for code that has no waiter-list needs of its own
// (none, currently).
type Event struct {
	word waiterWord
}

// NewEvent returns an unsignaled Event.
func NewEvent() *Event {
	return &Event{}
}

// IsSet reports whether the event is currently signaled.
func (e *Event) IsSet() bool {
	return e.word.userFlag()
}

// Set signals the event, waking every waiter currently queued. It reports
// whether the event was already set (a no-op wake in that case, matching
// spec.md's idempotent Set).
func (e *Event) Set() (alreadySet bool) {
	bo := defaultBackoff()
	if e.word.userFlag() {
		return true
	}
	head := e.word.claimAllLocked(true, bo)
	for head != nil {
		next := head.next
		head.next = nil
		head.run()
		head.selfDestructIfTransient()
		head = next
	}
	return false
}

// Reset clears the event. It does not affect waiters already queued; a
// waiter can only ever observe the event's state at the moment it was
// installed via Wait, not retroactively.
func (e *Event) Reset() {
	e.word.setUserFlag(false, defaultBackoff())
}

// Wait blocks until the event is signaled.
func (e *Event) Wait() {
	WaitFor(e, WaitModeBlock(0))
}

// AddWaiter implements Waitable. If the event is already signaled, the
// waiter's callback runs synchronously and AddWaiter reports false: per
// spec.md §4.4/§8, add_waiter returns true iff the event is unset (the
// waiter was armed for a later wake), and false when it found the event
// set: the callback then either ran synchronously or, if Set raced with the
// install and claimed the waiter, runs on Set's goroutine.
func (e *Event) AddWaiter(w *Waiter) bool {
	bo := defaultBackoff()
	for {
		if e.word.userFlag() {
			w.run()
			return false
		}
		e.word.AddWaiter(w, bo)
		if !e.word.userFlag() {
			return true
		}
		// Set raced with our publish: we cannot tell whether our waiter was
		// claimed by it or is still sitting unclaimed in the list, so try to
		// remove it ourselves. If removal succeeds, nobody claimed it and we
		// run it now; if it fails, Set's claimAllLocked already has it and
		// will run it.
		if e.word.RemoveWaiter(w, bo) {
			w.run()
			return false
		}
		return false
	}
}

// RemoveWaiter implements Waitable.
func (e *Event) RemoveWaiter(w *Waiter) bool {
	return e.word.RemoveWaiter(w, defaultBackoff())
}

// IsOrderDependent implements Waitable. An Event has no notion of waiter
// order: every queued waiter is woken together on Set, so installing an
// Event's waiter before or after another waitable's waiter cannot introduce
// a deadlock the way two order-dependent primitives (Mutex) can.
func (e *Event) IsOrderDependent() bool {
	return false
}
