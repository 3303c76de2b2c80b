// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"sync"

	"github.com/ancapdev/crunch"
	"github.com/ancapdev/crunch/platform"
)

// Config is an ordered registry of (id, Scheduler, default RunMode) tuples,
// spec.md §4.8's Config. ids must be unique across the lifetime of the
// Config; registering a duplicate id reports a *crunch.Error with Kind
// crunch.ErrKindDuplicateSchedulerID.
type Config struct {
	mu      sync.Mutex
	order   []string
	entries map[string]configEntry
}

type configEntry struct {
	scheduler Scheduler
	mode      RunMode
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{entries: make(map[string]configEntry)}
}

// Register adds s to the config under id with the given default run mode.
func (c *Config) Register(id string, s Scheduler, mode RunMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; exists {
		return crunch.NewDuplicateSchedulerIDError(id)
	}
	c.order = append(c.order, id)
	c.entries[id] = configEntry{scheduler: s, mode: mode}
	return nil
}

func (c *Config) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

func (c *Config) lookup(id string) (configEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// MetaThreadConfig is per-meta-thread configuration, spec.md §4.8's
// MetaThreadConfig: a processor affinity to apply while the thread runs its
// active schedulers, and per-scheduler run-mode overrides keyed by id
// (falling back to the Config's own default when no override is present).
type MetaThreadConfig struct {
	Affinity  platform.Affinity
	Overrides map[string]RunMode
}

func (mtc MetaThreadConfig) runMode(id string, defaultMode RunMode) RunMode {
	if mtc.Overrides == nil {
		return defaultMode
	}
	if m, ok := mtc.Overrides[id]; ok {
		return m
	}
	return defaultMode
}
