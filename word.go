// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"unsafe"

	"github.com/ancapdev/crunch/internal/xatomic"
)

// waiterWord is the single 64-bit atomic a Waitable's wait-list lives in —
// spec.md §3 and §4.3's waiter_list_t: a head *Waiter packed alongside a
// caller-defined flag bit, a lock bit, and an ABA counter, so that the
// entire list can be published, claimed, or spliced with one CAS instead of
// needing a separate mutex. This mirrors the teacher's nsync.Mu.word (a
// single uint32 packing muLock/muSpinlock/muWaiting/muDesigWaker next to an
// out-of-line dll), generalized here so the list head itself — not just a
// "list non-empty" bit — lives in the packed word, and widened to 64 bits so
// the head can be a real pointer rather than an index into a side table.
//
// Bit layout, exploiting the 8-byte alignment of *Waiter (the allocator in
// waiter.go never hands out anything less aligned than that):
//
//	bit 0        userFlagBit — caller-defined meaning (Event: "signaled",
//	             Mutex: "locked", Semaphore: unused)
//	bit 1        lockBit — set while a thread is walking/splicing the list;
//	             the list head is stable for the duration
//	bits 2-47    head *Waiter — address bits 2-47, stored in place (the
//	             address's two low bits are always zero by alignment)
//	bits 48-63   aba — incremented on every successful CAS, so that a thread
//	             which re-reads the same head pointer after a pop/push/pop
//	             cycle still observes a different word
//
// This port targets 64-bit platforms only (SPEC_FULL.md §9): a 48-bit
// address range is far beyond any real heap, and there is no 32-bit variant.
type waiterWord struct {
	v xatomic.Atomic[uint64]
}

const (
	wordUserFlagBit = uint64(1) << 0
	wordLockBit     = uint64(1) << 1
	wordFlagBits    = 2

	wordPointerBits  = 46
	wordPointerShift = wordFlagBits
	wordPointerMask  = ((uint64(1) << wordPointerBits) - 1) << wordPointerShift

	wordABAShift = wordFlagBits + wordPointerBits
	wordABAMask  = ^uint64(0) << wordABAShift
)

func wordPack(head *Waiter, flags uint64, aba uint64) uint64 {
	return (flags & (wordUserFlagBit | wordLockBit)) |
		(uint64(uintptr(unsafe.Pointer(head))) & wordPointerMask) |
		(aba << wordABAShift)
}

func wordUnpack(v uint64) (head *Waiter, flags uint64, aba uint64) {
	head = (*Waiter)(unsafe.Pointer(uintptr(v & wordPointerMask)))
	flags = v & (wordUserFlagBit | wordLockBit)
	aba = (v & wordABAMask) >> wordABAShift
	return head, flags, aba
}

func (w *waiterWord) load() uint64 { return w.v.Load() }

func (w *waiterWord) cas(old, new uint64) bool {
	return w.v.CompareAndSwap(old, new)
}

// userFlag reports the current state of the caller-defined bit.
func (w *waiterWord) userFlag() bool {
	_, flags, _ := wordUnpack(w.load())
	return flags&wordUserFlagBit != 0
}

// setUserFlag sets or clears the caller-defined bit without touching the
// list, spinning against concurrent list mutation via backoff. Used by
// Event.Reset (clear).
func (w *waiterWord) setUserFlag(value bool, bo Backoff) {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		var newFlags uint64
		if value {
			newFlags = flags | wordUserFlagBit
		} else {
			newFlags = flags &^ wordUserFlagBit
		}
		if newFlags == flags {
			return
		}
		next := wordPack(head, newFlags, aba+1)
		if w.cas(old, next) {
			return
		}
		bo.Pause()
	}
}

// testAndSetUserFlag atomically reads the current flag and, if it was not
// already value, sets it to value. It reports the previous value. Used by
// Mutex.AddWaiter's attempt to take the lock.
func (w *waiterWord) testAndSetUserFlag(value bool, bo Backoff) (previous bool) {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		previous = flags&wordUserFlagBit != 0
		if previous == value {
			return previous
		}
		var newFlags uint64
		if value {
			newFlags = flags | wordUserFlagBit
		} else {
			newFlags = flags &^ wordUserFlagBit
		}
		next := wordPack(head, newFlags, aba+1)
		if w.cas(old, next) {
			return previous
		}
		bo.Pause()
	}
}

// AddWaiter publishes w onto the front of the list. Per spec.md §4.3, add
// never itself sets lockBit — but it must also never publish while lockBit
// is observed set, since the lock holder is mid-walk and relies on the head
// not changing out from under it for the duration of the lock. This is the
// one place this port's reading of the spec differs from a literal
// transcription of "add never sets the lock bit": add backs off and retries
// its read of the word whenever the bit is currently set, only attempting
// its publish CAS once it observes the word unlocked.
func (w *waiterWord) AddWaiter(waiter *Waiter, bo Backoff) {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		if flags&wordLockBit != 0 {
			bo.Pause()
			continue
		}
		waiter.next = head
		next := wordPack(waiter, flags, aba+1)
		if w.cas(old, next) {
			return
		}
		bo.Pause()
	}
}

// RemoveWaiter unlinks waiter from the list if it is still present,
// reporting whether it found and removed it. A false return means the
// waiter was already claimed (its callback already ran, or is about to run
// on another thread) — the caller must not assume the callback has finished
// running, only that it is no longer this thread's responsibility to run it.
//
// Two paths, per spec.md §4.3:
//   - waiter is exactly the current head: a single CAS unlinks it without
//     ever taking lockBit, the common case for LIFO-ordered primitives
//     (Mutex, Semaphore) popping their own most-recently-added waiter.
//   - otherwise: acquire lockBit, walk the list looking for waiter, splice it
//     out if found, release lockBit. This is the only path that actually
//     walks more than one node, and it is the reason lockBit exists at all —
//     without it, a concurrent AddWaiter could publish a new head while this
//     thread is mid-walk and corrupt the splice.
func (w *waiterWord) RemoveWaiter(waiter *Waiter, bo Backoff) bool {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		if head == waiter {
			next := wordPack(waiter.next, flags, aba+1)
			if w.cas(old, next) {
				waiter.next = nil
				return true
			}
			bo.Pause()
			continue
		}
		if head == nil {
			return false
		}
		if flags&wordLockBit != 0 {
			bo.Pause()
			continue
		}
		locked := wordPack(head, flags|wordLockBit, aba+1)
		if !w.cas(old, locked) {
			bo.Pause()
			continue
		}
		found := spliceOut(w, waiter)
		w.unlock()
		return found
	}
}

// spliceOut walks the list looking for target, starting from the current
// (lockBit-held, therefore stable) head, and unlinks it if found. Must only
// be called while this word's lockBit is held by the caller.
func spliceOut(w *waiterWord, target *Waiter) bool {
	head, flags, aba := wordUnpack(w.load())
	if head == target {
		w.v.Store(wordPack(target.next, flags, aba))
		target.next = nil
		return true
	}
	prev := head
	for prev != nil {
		next := prev.next
		if next == target {
			prev.next = target.next
			target.next = nil
			return true
		}
		prev = next
	}
	return false
}

// unlock clears lockBit and keeps the word's current userFlagBit, so a flag
// change made while the lock was held (setUserFlag, testAndSetUserFlag,
// Mutex.TryLock) is not lost. It does not compete for lockBit itself, since
// only the holder calls unlock; its CAS retries only against such flag
// changes.
func (w *waiterWord) unlock() {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		next := wordPack(head, flags&^wordLockBit, aba+1)
		if w.cas(old, next) {
			return
		}
	}
}

// popHead removes and returns the current head of the list, or nil if
// empty, via a single CAS. It backs off while lockBit is held, so the head
// stays stable for a RemoveWaiter that is mid-walk. Concurrent popHead calls
// (Semaphore.Post is the caller) are safe against each other and against a
// head-match RemoveWaiter because each CAS compares the whole word, ABA
// counter included.
func (w *waiterWord) popHead(bo Backoff) *Waiter {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		if head == nil {
			return nil
		}
		if flags&wordLockBit != 0 {
			bo.Pause()
			continue
		}
		next := wordPack(head.next, flags, aba+1)
		if w.cas(old, next) {
			head.next = nil
			return head
		}
		bo.Pause()
	}
}

// claimAllLocked atomically detaches the entire current list (and clears
// userFlagBit back to false, storing newUserFlag in its place) and returns
// its head, for Event.Set's "wake everyone currently waiting" semantics
// (spec.md §4.5). It backs off while lockBit is held, so it never detaches a
// list that a RemoveWaiter is still walking. The returned list is this
// thread's exclusive property; waiters already self-detached via a racing
// RemoveWaiter are simply absent from it.
func (w *waiterWord) claimAllLocked(newUserFlag bool, bo Backoff) *Waiter {
	for {
		old := w.load()
		head, flags, aba := wordUnpack(old)
		if flags&wordLockBit != 0 {
			bo.Pause()
			continue
		}
		newFlags := flags &^ wordUserFlagBit
		if newUserFlag {
			newFlags |= wordUserFlagBit
		}
		next := wordPack(nil, newFlags, aba+1)
		if w.cas(old, next) {
			return head
		}
		bo.Pause()
	}
}

// defaultBackoff is used by callers (event.go, mutex.go, semaphore.go) that
// have no reason to choose a different policy for their internal word
// operations; WaitFor/WaitForAll/WaitForAny's own spin budgets are a
// separate, user-visible concern (waitable.go, WaitMode).
func defaultBackoff() Backoff { return &ExponentialBackoff{Limit: 1024} }
