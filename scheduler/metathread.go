// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"time"

	"github.com/ancapdev/crunch/platform"
)

// anchorPollInterval is how often a meta-thread's anchor goroutine checks
// for cancellation. It never does any scheduler work itself (Context.run
// borrows whichever goroutine calls it instead); it exists purely to hold
// the platform.ThreadPool reservation open for the meta-thread's lifetime.
const anchorPollInterval = 5 * time.Millisecond

func runAnchor(t *platform.Thread) {
	for !t.IsCancellationRequested() {
		time.Sleep(anchorPollInterval)
	}
}

// MetaThread is a reusable slot a Context.run claims for the duration of one
// run() call and returns to the idle pool on teardown, spec.md §4.8. It
// carries the per-thread configuration (affinity, run-mode overrides) a
// caller supplied when it was created, and anchor, the platform.Thread that
// holds this meta-thread's reservation against the MetaScheduler's
// platform.ThreadPool budget for its whole lifetime (spec.md §7's
// ThreadResourceError source: CreateMetaThread fails once the pool is
// exhausted).
type MetaThread struct {
	id     int
	config MetaThreadConfig
	anchor *platform.Thread
}

// ID identifies the meta-thread for logging and metric labeling.
func (mt *MetaThread) ID() int { return mt.id }

// applyAffinity switches the calling OS thread's affinity to this
// meta-thread's configured mask, returning the mask to restore afterward.
// Must be called with the calling goroutine already pinned via
// runtime.LockOSThread (Context.run does this before calling applyAffinity).
func (mt *MetaThread) applyAffinity() (old platform.Affinity, err error) {
	return platform.SetThreadAffinity(mt.config.Affinity)
}

// destroy cancels and joins the meta-thread's anchor, releasing its
// reservation back to the MetaScheduler's ThreadPool.
func (mt *MetaThread) destroy() {
	if mt.anchor == nil {
		return
	}
	mt.anchor.Cancel()
	mt.anchor.Join()
}
