// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import "github.com/ancapdev/crunch/platform"

// Backoff is the shape every retry loop in this package consumes: a CAS loop
// calls Pause() between attempts, TryPause() when it wants to know whether
// pausing further is still worthwhile (false means "stop spinning, you should
// block instead"), and Reset() when it starts a fresh retry sequence.
//
// Grounded on nsync's spinDelay (v.io/x/lib/nsync/common.go), which busy-spins
// for a few attempts and then calls runtime.Gosched, generalized into the
// three named policies spec.md requires instead of one hardcoded curve.
type Backoff interface {
	Pause()
	TryPause() bool
	Reset()
}

// NullBackoff never pauses; TryPause always reports success. Used where a
// caller wants a pure retry loop with no delay, e.g. a single CAS attempt
// that is expected to essentially never collide.
type NullBackoff struct{}

func (NullBackoff) Pause()         {}
func (NullBackoff) TryPause() bool { return true }
func (NullBackoff) Reset()         {}

// ConstantBackoff pauses a fixed number of processor hints on every call.
type ConstantBackoff struct {
	N int
}

func (c ConstantBackoff) Pause() {
	for i := 0; i < c.N; i++ {
		platform.PauseHint()
	}
}

func (c ConstantBackoff) TryPause() bool {
	c.Pause()
	return true
}

func (ConstantBackoff) Reset() {}

// ExponentialBackoff starts at one processor-pause hint and doubles on every
// call up to Limit. Once the limit is reached, Pause yields the OS thread
// (runtime.Gosched) instead of spinning further, and TryPause reports false
// so the caller knows spinning has stopped paying for itself.
type ExponentialBackoff struct {
	Limit int

	attempts int
}

func (e *ExponentialBackoff) Pause() {
	if !e.TryPause() {
		platform.Yield()
	}
}

// TryPause spins the current delay and reports whether it stayed within
// Limit. Once it would exceed Limit it does not spin at all, returning false
// so the caller can fall back to a blocking wait.
func (e *ExponentialBackoff) TryPause() bool {
	limit := e.Limit
	if limit <= 0 {
		limit = 1
	}
	delay := 1 << e.attempts
	if delay > limit {
		return false
	}
	for i := 0; i < delay; i++ {
		platform.PauseHint()
	}
	e.attempts++
	return true
}

func (e *ExponentialBackoff) Reset() {
	e.attempts = 0
}
