// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInitiallyUnset(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.IsSet())
}

func TestEventSetWakesWaiter(t *testing.T) {
	e := NewEvent()
	woke := make(chan struct{})
	go func() {
		e.Wait()
		close(woke)
	}()

	select {
	case <-woke:
		t.Fatal("waiter returned before Set")
	case <-time.After(20 * time.Millisecond):
	}

	e.Set()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after Set")
	}
	assert.True(t, e.IsSet())
}

func TestEventSetIsIdempotent(t *testing.T) {
	e := NewEvent()
	require.False(t, e.Set())
	assert.True(t, e.Set())
}

func TestEventResetThenWaitBlocksAgain(t *testing.T) {
	e := NewEvent()
	e.Set()
	e.Reset()
	assert.False(t, e.IsSet())

	woke := make(chan struct{})
	go func() {
		e.Wait()
		close(woke)
	}()
	select {
	case <-woke:
		t.Fatal("waiter returned on a reset event")
	case <-time.After(20 * time.Millisecond):
	}
	e.Set()
	<-woke
}

func TestEventSetWakesEveryQueuedWaiter(t *testing.T) {
	const n = 20
	e := NewEvent()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			e.Wait()
		}()
	}
	// Give every goroutine a chance to queue before Set races them.
	time.Sleep(20 * time.Millisecond)
	e.Set()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke")
	}
}

func TestEventAddWaiterSynchronousWhenAlreadySet(t *testing.T) {
	e := NewEvent()
	e.Set()

	ran := false
	w := NewWaiter(func(*Waiter) { ran = true })
	assert.False(t, e.AddWaiter(w))
	assert.True(t, ran)
}

func TestEventRemoveWaiterBeforeSet(t *testing.T) {
	e := NewEvent()
	w := NewWaiter(func(*Waiter) {})
	armed := e.AddWaiter(w)
	require.True(t, armed)
	assert.True(t, e.RemoveWaiter(w))
	// Removing twice reports false the second time.
	assert.False(t, e.RemoveWaiter(w))
}
