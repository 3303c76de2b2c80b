// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphorePostWait(t *testing.T) {
	s := NewSemaphore()
	assert.False(t, s.TryWait())
	s.Post()
	assert.True(t, s.TryWait())
	assert.False(t, s.TryWait())

	s.Post()
	s.Wait()
}

func TestSemaphoreSpinWait(t *testing.T) {
	s := NewSemaphore()
	assert.False(t, s.SpinWait(8))
	s.Post()
	assert.True(t, s.SpinWait(8))
}

func TestEventSetResetWait(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.IsSet())

	woke := make(chan struct{})
	go func() {
		e.Wait()
		close(woke)
	}()

	select {
	case <-woke:
		t.Fatal("Wait returned before Set")
	case <-time.After(20 * time.Millisecond):
	}

	e.Set()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
	assert.True(t, e.IsSet())

	e.Reset()
	assert.False(t, e.IsSet())
}

func TestConditionWakeOneWakeAll(t *testing.T) {
	mu := &Mutex{}
	cond := NewCondition(mu)

	const n = 4
	var wg sync.WaitGroup
	wg.Add(n)
	woken := 0
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			mu.Lock()
			cond.Wait()
			woken++
			mu.Unlock()
		}()
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	cond.WakeOne()
	mu.Unlock()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return woken == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	cond.WakeAll()
	mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not every waiter woke")
	}
	assert.Equal(t, n, woken)
}

func TestThreadPoolSpawnJoinAndExhaustion(t *testing.T) {
	p := NewThreadPool(1)

	ran := make(chan struct{})
	th, err := p.Spawn(func(t *Thread) {
		<-ran
	})
	require.NoError(t, err)

	_, err = p.Spawn(func(*Thread) {})
	assert.ErrorIs(t, err, ErrThreadResource)

	close(ran)
	th.Join()

	th2, err := p.Spawn(func(*Thread) {})
	require.NoError(t, err)
	th2.Join()
}

func TestThreadCancelIsObservedByFn(t *testing.T) {
	p := NewThreadPool(1)
	stopped := make(chan struct{})
	th, err := p.Spawn(func(t *Thread) {
		for !t.IsCancellationRequested() {
			time.Sleep(time.Millisecond)
		}
		close(stopped)
	})
	require.NoError(t, err)

	th.Cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("thread did not observe cancellation")
	}
	th.Join()
}

func TestThreadDetach(t *testing.T) {
	p := NewThreadPool(1)
	th, err := p.Spawn(func(*Thread) {})
	require.NoError(t, err)
	th.Join()
	th.Detach()
}

func TestThreadPoolSpawnBlocking(t *testing.T) {
	p := NewThreadPool(1)
	ran := make(chan struct{})
	th, err := p.Spawn(func(*Thread) { <-ran })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.SpawnBlocking(ctx, func(*Thread) {})
	assert.Error(t, err)

	close(ran)
	th.Join()
}

func TestMonotonicNowAdvances(t *testing.T) {
	start := MonotonicNow()
	time.Sleep(time.Millisecond)
	assert.True(t, MonotonicNow().After(start))
}
