// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForReturnsImmediatelyWhenAlreadySignaled(t *testing.T) {
	e := NewEvent()
	e.Set()

	done := make(chan struct{})
	go func() {
		WaitFor(e, WaitModeBlock(8))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor blocked on an already-signaled event")
	}
}

func TestWaitForBlocksUntilSignaled(t *testing.T) {
	e := NewEvent()
	done := make(chan struct{})
	go func() {
		WaitFor(e, WaitModeBlock(8))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitFor returned before Set")
	case <-time.After(20 * time.Millisecond):
	}
	e.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor never returned after Set")
	}
}

func TestWaitForPollDoesNotBlock(t *testing.T) {
	e := NewEvent()
	done := make(chan struct{})
	go func() {
		WaitFor(e, WaitModePoll())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor(WaitModePoll) blocked")
	}
}

func TestWaitForAllWaitsForEveryEvent(t *testing.T) {
	a, b, c := NewEvent(), NewEvent(), NewEvent()
	done := make(chan struct{})
	go func() {
		WaitForAll(WaitModeBlock(8), a, b, c)
		close(done)
	}()

	a.Set()
	select {
	case <-done:
		t.Fatal("WaitForAll returned before every waitable was signaled")
	case <-time.After(20 * time.Millisecond):
	}
	b.Set()
	c.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForAll never returned")
	}
}

func TestWaitForAllOrdersMutexesByIdentity(t *testing.T) {
	m1, m2 := NewMutex(), NewMutex()
	require.True(t, m1.IsOrderDependent())
	require.True(t, m2.IsOrderDependent())

	done := make(chan struct{})
	go func() {
		WaitForAll(WaitModeBlock(8), m1, m2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForAll never acquired both mutexes")
	}
	assert.False(t, m1.TryLock())
	assert.False(t, m2.TryLock())
}

func TestWaitForAnyReturnsFirstReadyIndex(t *testing.T) {
	a, b := NewEvent(), NewEvent()
	result := make(chan int, 1)
	go func() {
		result <- WaitForAny(WaitModeBlock(8), a, b)
	}()

	select {
	case <-result:
		t.Fatal("WaitForAny returned before either event was signaled")
	case <-time.After(20 * time.Millisecond):
	}
	b.Set()

	select {
	case idx := <-result:
		assert.Equal(t, 1, idx)
	case <-time.After(time.Second):
		t.Fatal("WaitForAny never returned")
	}
}

func TestWaitForAnySynchronousWhenAlreadyReady(t *testing.T) {
	a, b := NewEvent(), NewEvent()
	a.Set()
	idx := WaitForAny(WaitModeBlock(8), a, b)
	assert.Equal(t, 0, idx)
}
