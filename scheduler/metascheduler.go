// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"sync"

	"github.com/ancapdev/crunch"
	"github.com/ancapdev/crunch/internal/clog"
	"github.com/ancapdev/crunch/platform"
)

// defaultMaxMetaThreads bounds how many meta-threads New's plain
// constructor will let CreateMetaThread reserve before it starts returning
// platform.ErrThreadResource. It is generous enough that no realistic
// caller using New directly notices the limit; NewWithThreadBudget exposes
// a tighter one to processes that want spec.md §7's ThreadResourceError to
// be reachable under real contention.
const defaultMaxMetaThreads = 1 << 16

// MetaScheduler owns the idle meta-thread pool and the Config every
// meta-thread draws its registered Schedulers from, spec.md §4.8's
// MetaScheduler{new(config), create_meta_thread(cfg), acquire_context}.
type MetaScheduler struct {
	config *Config

	threadPool *platform.ThreadPool

	idleMu   platform.Mutex
	idleCond *platform.Condition
	idle     []*MetaThread
	nextID   int

	contextsMu sync.Mutex
	contexts   map[interface{}]*Context

	metrics *Metrics
}

// New returns a MetaScheduler reading from config. The idle pool starts
// empty; call CreateMetaThread to add capacity.
func New(config *Config) *MetaScheduler {
	return NewWithThreadBudget(config, defaultMaxMetaThreads)
}

// NewWithThreadBudget is New, but bounds the number of meta-threads
// CreateMetaThread will let the caller reserve to maxMetaThreads, the Go
// realization of spec.md §7's ThreadResourceError: once maxMetaThreads
// meta-threads are live at once, further CreateMetaThread calls fail with
// platform.ErrThreadResource until one is destroyed.
func NewWithThreadBudget(config *Config, maxMetaThreads int64) *MetaScheduler {
	ms := &MetaScheduler{
		config:     config,
		threadPool: platform.NewThreadPool(maxMetaThreads),
		contexts:   make(map[interface{}]*Context),
		metrics:    NewMetrics(),
	}
	ms.idleCond = platform.NewCondition(&ms.idleMu)
	return ms
}

// Metrics returns the prometheus gauges this MetaScheduler maintains.
func (ms *MetaScheduler) Metrics() *Metrics { return ms.metrics }

// CreateMetaThread adds one new meta-thread, configured per cfg, to the
// idle pool and returns it. It reserves one slot in this MetaScheduler's
// platform.ThreadPool budget for the meta-thread's lifetime, via an anchor
// platform.Thread that does no scheduler work itself; it returns a
// *crunch.Error with Kind crunch.ErrKindThreadResource instead if the pool
// is already exhausted.
func (ms *MetaScheduler) CreateMetaThread(cfg MetaThreadConfig) (*MetaThread, error) {
	anchor, err := ms.threadPool.Spawn(runAnchor)
	if err != nil {
		return nil, crunch.NewThreadResourceError(err)
	}

	ms.idleMu.Lock()
	defer ms.idleMu.Unlock()
	ms.nextID++
	mt := &MetaThread{id: ms.nextID, config: cfg, anchor: anchor}
	ms.idle = append(ms.idle, mt)
	ms.metrics.IdleMetaThreads.Inc()
	ms.idleCond.WakeAll()
	clog.Infof("scheduler: meta-thread %d created", mt.ID())
	return mt, nil
}

// DestroyMetaThread removes mt from the idle pool and releases its
// platform.ThreadPool reservation. mt must currently be idle (not claimed by
// a running Context.run); destroying a meta-thread still in use is a misuse
// error, not a race this method tries to guard against.
func (ms *MetaScheduler) DestroyMetaThread(mt *MetaThread) {
	ms.idleMu.Lock()
	for i, candidate := range ms.idle {
		if candidate == mt {
			ms.idle = append(ms.idle[:i], ms.idle[i+1:]...)
			ms.metrics.IdleMetaThreads.Dec()
			break
		}
	}
	ms.idleMu.Unlock()
	mt.destroy()
	clog.Infof("scheduler: meta-thread %d destroyed", mt.ID())
}

// acquireIdleMetaThread removes and returns one meta-thread from the idle
// pool, blocking until one is available or stopped reports true (checked
// each time the condition variable wakes this goroutine).
func (ms *MetaScheduler) acquireIdleMetaThread(stopped func() bool) (*MetaThread, bool) {
	ms.idleMu.Lock()
	defer ms.idleMu.Unlock()
	for len(ms.idle) == 0 {
		if stopped() {
			return nil, false
		}
		ms.idleCond.Wait()
	}
	if stopped() {
		return nil, false
	}
	n := len(ms.idle)
	mt := ms.idle[n-1]
	ms.idle = ms.idle[:n-1]
	ms.metrics.IdleMetaThreads.Dec()
	return mt, true
}

// releaseMetaThread returns mt to the idle pool, per spec.md §4.8 step 6.
func (ms *MetaScheduler) releaseMetaThread(mt *MetaThread) {
	ms.idleMu.Lock()
	ms.idle = append(ms.idle, mt)
	ms.metrics.IdleMetaThreads.Inc()
	ms.idleMu.Unlock()
	ms.idleCond.WakeAll()
}

// wakeIdleWaiters broadcasts the idle-pool condition variable without
// changing the pool, used to wake a goroutine parked in
// acquireIdleMetaThread when its until waitable fires rather than when a
// meta-thread becomes available.
func (ms *MetaScheduler) wakeIdleWaiters() {
	ms.idleMu.Lock()
	ms.idleMu.Unlock()
	ms.idleCond.WakeAll()
}

// AcquireContext returns the Context associated with key, bumping its
// reference count if one already exists or creating one otherwise. key
// stands in for the thread-local slot spec.md §4.8 keys contexts by: Go has
// no portable goroutine-local storage, so callers that want "the calling
// goroutine's context" supply a key stable across their own calls (e.g. a
// *int they hold onto), while callers happy to share one context across
// goroutines can use any fixed key.
func (ms *MetaScheduler) AcquireContext(key interface{}) *Context {
	ms.contextsMu.Lock()
	defer ms.contextsMu.Unlock()
	if c, ok := ms.contexts[key]; ok {
		c.refcount++
		return c
	}
	c := newContext(ms, key)
	ms.contexts[key] = c
	ms.metrics.ActiveContexts.Inc()
	return c
}

// releaseContext decrements key's context refcount, tearing it down and
// removing it from the registry once it reaches zero.
func (ms *MetaScheduler) releaseContext(key interface{}) {
	ms.contextsMu.Lock()
	c, ok := ms.contexts[key]
	if !ok {
		ms.contextsMu.Unlock()
		return
	}
	c.refcount--
	done := c.refcount <= 0
	if done {
		delete(ms.contexts, key)
	}
	ms.contextsMu.Unlock()
	if done {
		ms.metrics.ActiveContexts.Dec()
	}
}
