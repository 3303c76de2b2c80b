// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseResolveAndFutureGet(t *testing.T) {
	p, f := NewPromise[string]()
	require.NoError(t, p.Resolve("hello"))

	value, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, "hello", value)
}

func TestPromiseFailPropagatesToFuture(t *testing.T) {
	p, f := NewPromise[int]()
	sentinel := errors.New("boom")
	require.NoError(t, p.Fail(sentinel))

	_, err := f.Get()
	assert.Equal(t, sentinel, err)
}

func TestPromiseCancelPropagatesToFuture(t *testing.T) {
	p, f := NewPromise[int]()
	require.NoError(t, p.Cancel())

	_, err := f.Get()
	assert.Equal(t, ErrFutureCanceled, err)
	assert.True(t, f.Canceled())
}

func TestPromiseDoubleSettleReportsError(t *testing.T) {
	p, _ := NewPromise[int]()
	require.NoError(t, p.Resolve(1))
	assert.Equal(t, ErrPromiseAlreadySettled, p.Resolve(2))
	assert.Equal(t, ErrPromiseAlreadySettled, p.Fail(errors.New("x")))
	assert.Equal(t, ErrPromiseAlreadySettled, p.Cancel())
}

func TestFutureGetBlocksUntilResolved(t *testing.T) {
	p, f := NewPromise[int]()
	result := make(chan int, 1)
	go func() {
		v, _ := f.Get()
		result <- v
	}()

	select {
	case <-result:
		t.Fatal("Get returned before Resolve")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, p.Resolve(7))
	select {
	case v := <-result:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Resolve")
	}
}

func TestFutureTryGet(t *testing.T) {
	p, f := NewPromise[int]()
	_, _, ok := f.TryGet()
	assert.False(t, ok)

	require.NoError(t, p.Resolve(3))
	value, err, ok := f.TryGet()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 3, value)
}

func TestFutureComposesWithWaitFor(t *testing.T) {
	p, f := NewPromise[int]()
	done := make(chan struct{})
	go func() {
		WaitFor(f, WaitModeBlock(8))
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("WaitFor returned before the promise was settled")
	case <-time.After(20 * time.Millisecond):
	}
	require.NoError(t, p.Resolve(1))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor never returned")
	}
}
