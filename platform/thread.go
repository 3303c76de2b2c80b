// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrThreadResource is returned by Spawn when the pool's concurrency budget
// is exhausted, the Go realization of spec.md §7's ThreadResourceError
// ("thread creation failed at the platform layer").
var ErrThreadResource = errors.New("platform: thread resource exhausted")

// ThreadPool bounds the number of concurrently live platform threads a
// process is willing to spawn. A goroutine is not an OS thread, but the
// meta-scheduler (scheduler package) wants a concrete, finite notion of
// "thread creation can fail" so that ThreadResourceError has somewhere to
// come from; ThreadPool gives it one via a weighted semaphore.
//
// Grounded on golang.org/x/sync/semaphore's own documented use case (bound a
// worker count), adopted from joeycumines/go-utilpkg's own golang.org/x/sync
// dependency rather than invented fresh.
type ThreadPool struct {
	sem *semaphore.Weighted
}

// NewThreadPool returns a pool that allows at most max concurrently running
// Threads.
func NewThreadPool(max int64) *ThreadPool {
	return &ThreadPool{sem: semaphore.NewWeighted(max)}
}

// Thread is a handle to a spawned goroutine with join/detach/cancel, the Go
// realization of spec.md §6's Thread{spawn, join, detach, cancel} platform
// collaborator.
type Thread struct {
	pool      *ThreadPool
	done      chan struct{}
	cancelled atomic.Bool
	detached  atomic.Bool
	once      sync.Once
}

// Spawn starts fn on a new goroutine, returning ErrThreadResource instead of
// starting it if the pool's budget is already exhausted. fn receives a
// *Thread so it can poll IsCancellationRequested at a cancellation point, per
// spec.md §5's cancellation model.
func (p *ThreadPool) Spawn(fn func(t *Thread)) (*Thread, error) {
	if !p.sem.TryAcquire(1) {
		return nil, ErrThreadResource
	}
	t := &Thread{pool: p, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer p.sem.Release(1)
		fn(t)
	}()
	return t, nil
}

// SpawnBlocking is like Spawn, but blocks until the pool has room (bounded
// by ctx) instead of failing immediately.
func (p *ThreadPool) SpawnBlocking(ctx context.Context, fn func(t *Thread)) (*Thread, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	t := &Thread{pool: p, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer p.sem.Release(1)
		fn(t)
	}()
	return t, nil
}

// Join blocks until the thread's function returns.
func (t *Thread) Join() {
	<-t.done
}

// Detach marks the thread as not needing Join; it does not change the
// thread's lifetime (Go cannot abandon a goroutine), only that no caller is
// waiting on Join.
func (t *Thread) Detach() {
	t.detached.Store(true)
}

// Cancel requests that the thread's function observe cancellation at its
// next cancellation point (a call to IsCancellationRequested).
func (t *Thread) Cancel() {
	t.cancelled.Store(true)
}

// IsCancellationRequested reports whether Cancel has been called. Threads
// that never check this simply run to completion; this module never forces
// preemption.
func (t *Thread) IsCancellationRequested() bool {
	return t.cancelled.Load()
}
