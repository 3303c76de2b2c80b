// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordPackUnpackRoundTrip(t *testing.T) {
	w := &Waiter{}
	packed := wordPack(w, wordUserFlagBit, 7)
	head, flags, aba := wordUnpack(packed)
	assert.Equal(t, w, head)
	assert.Equal(t, wordUserFlagBit, flags)
	assert.Equal(t, uint64(7), aba)
}

func TestWordPackNilHead(t *testing.T) {
	packed := wordPack(nil, 0, 0)
	head, _, _ := wordUnpack(packed)
	assert.Nil(t, head)
}

func TestWaiterWordAddAndPopHead(t *testing.T) {
	var word waiterWord
	bo := NullBackoff{}

	a := &Waiter{}
	b := &Waiter{}
	word.AddWaiter(a, bo)
	word.AddWaiter(b, bo)

	// LIFO: b was added last, so it pops first.
	popped := word.popHead(bo)
	assert.Same(t, b, popped)
	popped = word.popHead(bo)
	assert.Same(t, a, popped)
	assert.Nil(t, word.popHead(bo))
}

func TestWaiterWordRemoveWaiterHeadAndMiddle(t *testing.T) {
	var word waiterWord
	bo := NullBackoff{}

	a := &Waiter{}
	b := &Waiter{}
	c := &Waiter{}
	word.AddWaiter(a, bo)
	word.AddWaiter(b, bo)
	word.AddWaiter(c, bo)
	// list head->tail: c, b, a

	require.True(t, word.RemoveWaiter(b, bo)) // middle: requires the lock-and-walk path
	assert.False(t, word.RemoveWaiter(b, bo)) // already removed

	require.True(t, word.RemoveWaiter(c, bo)) // head: single-CAS path
	require.True(t, word.RemoveWaiter(a, bo))
	assert.False(t, word.RemoveWaiter(a, bo))
}

func TestWaiterWordABACounterAdvancesOnEveryMutation(t *testing.T) {
	var word waiterWord
	bo := NullBackoff{}
	_, _, aba0 := wordUnpack(word.load())

	a := &Waiter{}
	word.AddWaiter(a, bo)
	_, _, aba1 := wordUnpack(word.load())
	assert.Greater(t, aba1, aba0)

	word.popHead(bo)
	_, _, aba2 := wordUnpack(word.load())
	assert.Greater(t, aba2, aba1)
}

func TestWaiterWordUserFlag(t *testing.T) {
	var word waiterWord
	bo := NullBackoff{}
	assert.False(t, word.userFlag())

	prev := word.testAndSetUserFlag(true, bo)
	assert.False(t, prev)
	assert.True(t, word.userFlag())

	prev = word.testAndSetUserFlag(true, bo)
	assert.True(t, prev) // already set, no-op

	word.setUserFlag(false, bo)
	assert.False(t, word.userFlag())
}

func TestWaiterWordClaimAllLocked(t *testing.T) {
	var word waiterWord
	bo := NullBackoff{}
	a := &Waiter{}
	b := &Waiter{}
	word.AddWaiter(a, bo)
	word.AddWaiter(b, bo)

	head := word.claimAllLocked(true, bo)
	assert.Same(t, b, head)
	assert.True(t, word.userFlag())
	assert.Nil(t, word.popHead(bo))
}
