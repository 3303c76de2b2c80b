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

func TestSemaphoreTryWait(t *testing.T) {
	s := NewSemaphore(1)
	require.True(t, s.TryWait())
	assert.False(t, s.TryWait())
	s.Post()
	assert.True(t, s.TryWait())
}

func TestSemaphorePostWakesOneWaiter(t *testing.T) {
	s := NewSemaphore(0)
	acquired := make(chan struct{})
	go func() {
		s.Wait()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquired before Post")
	case <-time.After(20 * time.Millisecond):
	}

	s.Post()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after Post")
	}
}

// TestSemaphoreTwoPermitsFiveWaitersThreePosts matches spec.md §8's named
// scenario: a semaphore starting with 2 permits and 5 waiters should let
// exactly 5 of them through once 3 additional posts arrive (2 initial + 3
// posted = 5 permits total), and no more than 5.
func TestSemaphoreTwoPermitsFiveWaitersThreePosts(t *testing.T) {
	s := NewSemaphore(2)
	const waiters = 5
	acquired := make(chan int, waiters)
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			defer wg.Done()
			s.Wait()
			acquired <- i
		}()
	}

	// Only the 2 initial permits should be claimable so far.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, acquired, 2)

	for i := 0; i < 3; i++ {
		s.Post()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all 5 waiters acquired a permit")
	}
	assert.Len(t, acquired, waiters)
	assert.False(t, s.TryWait(), "no permits should remain")
}

func TestSemaphoreIsOrderDependent(t *testing.T) {
	assert.True(t, NewSemaphore(0).IsOrderDependent())
}
