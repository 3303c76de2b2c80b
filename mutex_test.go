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

func TestMutexTryLock(t *testing.T) {
	m := NewMutex()
	require.True(t, m.TryLock())
	assert.False(t, m.TryLock())
	m.Unlock()
	assert.True(t, m.TryLock())
}

func TestMutexMutualExclusion(t *testing.T) {
	m := NewMutex()
	counter := 0
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, counter)
}

// TestMutexLIFOWakeupOrder locks T1, then queues T2 and T3 behind it (in
// that order), and asserts Unlock wakes the most recently queued waiter
// first: releasing T1's hold hands off to T3, and T3's Unlock then hands off
// to T2. This is the scenario spec.md §8 names explicitly: Mutex fairness is
// LIFO, not FIFO.
func TestMutexLIFOWakeupOrder(t *testing.T) {
	m := NewMutex()
	m.Lock() // held by the test goroutine, standing in for T1

	queued := make(chan string, 2)
	order := make(chan string, 2)

	queue := func(name string) {
		done := make(chan struct{})
		w := newTransientWaiter(func(*Waiter) {
			order <- name
			close(done)
		})
		queued <- name
		armed := m.AddWaiter(w)
		require.True(t, armed)
		<-done
		m.Unlock()
	}

	go queue("T2")
	// Ensure T2 is queued (is the current head) before T3 queues behind it.
	require.Equal(t, "T2", <-queued)
	time.Sleep(10 * time.Millisecond)

	go queue("T3")
	require.Equal(t, "T3", <-queued)
	time.Sleep(10 * time.Millisecond)

	m.Unlock() // releases T1's hold; should hand off to T3 (most recent)

	first := <-order
	second := <-order
	assert.Equal(t, "T3", first)
	assert.Equal(t, "T2", second)
}

func TestMutexIsOrderDependent(t *testing.T) {
	assert.True(t, NewMutex().IsOrderDependent())
}
