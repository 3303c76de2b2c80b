// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the sentinel errors this package and the scheduler
// package return, spec.md §7's error taxonomy realized as a single exported
// type with a Kind field rather than one exported type per error, so
// callers can switch on errors.As(err, &crunch.Error{}).Kind instead of a
// long chain of errors.Is checks.
type ErrorKind int

const (
	// ErrKindInvalidRunMode: a WaitMode or scheduler RunMode value outside
	// its defined set was supplied.
	ErrKindInvalidRunMode ErrorKind = iota + 1
	// ErrKindThreadResource: the platform layer could not create a thread
	// (see platform.ErrThreadResource, which this wraps at the scheduler
	// boundary).
	ErrKindThreadResource
	// ErrKindThreadCanceled: a blocking operation observed its Thread's
	// cancellation flag and unwound instead of completing.
	ErrKindThreadCanceled
	// ErrKindDuplicateSchedulerID: scheduler.Config registered two
	// schedulers under the same identifier.
	ErrKindDuplicateSchedulerID
	// ErrKindContextOwnerMismatch: a scheduler.Context method was called
	// from a goroutine other than the one that acquired it.
	ErrKindContextOwnerMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInvalidRunMode:
		return "invalid run mode"
	case ErrKindThreadResource:
		return "thread resource exhausted"
	case ErrKindThreadCanceled:
		return "thread canceled"
	case ErrKindDuplicateSchedulerID:
		return "duplicate scheduler id"
	case ErrKindContextOwnerMismatch:
		return "context owner mismatch"
	default:
		return "unknown"
	}
}

// Error is the concrete type of every error in the ErrorKind taxonomy.
// ErrPromiseAlreadySettled and ErrFutureCanceled below are plain errors.New
// sentinels outside it.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "crunch: " + e.Kind.String()
	}
	return fmt.Sprintf("crunch: %s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ErrPromiseAlreadySettled is returned by Promise.Resolve/Fail/Cancel when
// the promise has already been settled by an earlier call.
var ErrPromiseAlreadySettled = errors.New("crunch: promise already settled")

// ErrFutureCanceled is returned by Future.Get when the associated promise
// was settled via Promise.Cancel rather than Resolve or Fail.
var ErrFutureCanceled = errors.New("crunch: future canceled")

// ErrInvalidRunMode reports a RunMode/WaitMode value outside its defined
// set, e.g. a zero-value WaitMode constructed without one of the
// WaitModePoll/WaitModeBlock/WaitModeRun constructors being passed where a
// scheduler RunMode override is expected.
func ErrInvalidRunMode(detail string) error {
	return newError(ErrKindInvalidRunMode, "%s", detail)
}

// NewDuplicateSchedulerIDError reports that id was already registered with
// a scheduler.Config. Exported so the scheduler package, which cannot
// import this package's unexported newError, can construct the same
// *Error type this package uses everywhere else.
func NewDuplicateSchedulerIDError(id string) error {
	return newError(ErrKindDuplicateSchedulerID, "scheduler id %q already registered", id)
}

// NewContextOwnerMismatchError reports that a Context method was invoked by
// a party other than the one that last acquired it.
func NewContextOwnerMismatchError() error {
	return newError(ErrKindContextOwnerMismatch, "context accessed by a non-owning caller")
}

// NewThreadCanceledError reports that a blocking operation observed its
// Thread's cancellation flag.
func NewThreadCanceledError() error {
	return newError(ErrKindThreadCanceled, "thread canceled")
}

// NewThreadResourceError wraps a platform-layer thread creation failure
// (platform.ErrThreadResource) as a *crunch.Error with ErrKindThreadResource,
// so callers outside the scheduler package can errors.As for it the same
// way they would any other error in this package's taxonomy. cause is kept
// reachable via errors.Unwrap.
func NewThreadResourceError(cause error) error {
	e := newError(ErrKindThreadResource, "%s", cause)
	return &wrappedError{Error: e, cause: cause}
}

// wrappedError pairs an *Error with an Unwrap target, since *Error itself
// has no cause field (most of this package's errors are synthesized, not
// wrapped from somewhere else).
type wrappedError struct {
	*Error
	cause error
}

func (w *wrappedError) Unwrap() error { return w.cause }

// As lets errors.As find the embedded *Error, which unwrapping alone would
// skip straight past to cause.
func (w *wrappedError) As(target interface{}) bool {
	if t, ok := target.(**Error); ok {
		*t = w.Error
		return true
	}
	return false
}
