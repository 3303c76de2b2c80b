// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crunch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stackNode struct {
	next *stackNode
	val  int
}

func newTestStack() *Stack[stackNode] {
	return NewStack(
		func(n *stackNode) *stackNode { return n.next },
		func(n *stackNode, next *stackNode) { n.next = next },
	)
}

func TestStackPopEmpty(t *testing.T) {
	s := newTestStack()
	_, ok := s.Pop()
	assert.False(t, ok)
}

// TestStackLIFOOrder pushes n1..n5 in order and expects pop to return them
// in reverse: n5, n4, n3, n2, n1, spec.md §8's named MPMC LIFO scenario.
func TestStackLIFOOrder(t *testing.T) {
	s := newTestStack()
	nodes := make([]*stackNode, 5)
	for i := range nodes {
		nodes[i] = &stackNode{val: i + 1}
		s.Push(nodes[i])
	}
	for i := 5; i >= 1; i-- {
		n, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, i, n.val)
	}
	_, ok := s.Pop()
	assert.False(t, ok)
}

func TestStackConcurrentPushPopPreservesCount(t *testing.T) {
	s := newTestStack()
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			s.Push(&stackNode{val: i})
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for {
		node, ok := s.Pop()
		if !ok {
			break
		}
		assert.False(t, seen[node.val], "value %d popped twice", node.val)
		seen[node.val] = true
	}
	assert.Len(t, seen, n)
}
