// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clog is a narrow structured-logging shim over
// github.com/cosmosnicolaou/llog, the same leveled-logging library the
// teacher's own v.io/x/lib/vlog wraps. Unlike vlog, which exposes V-levels,
// flag-driven configuration, and stack dumps for an entire application,
// clog serves only the scheduler package (meta-thread creation and
// destruction, and failures to apply or restore a meta-thread's processor
// affinity) and so only carries the two severities those sites need.
package clog

import (
	"sync"

	"github.com/cosmosnicolaou/llog"
)

const stackSkip = 1

var (
	once sync.Once
	log  *llog.Log
)

func logger() *llog.Log {
	once.Do(func() {
		log = llog.NewLogger("crunch", stackSkip)
	})
	return log
}

// Infof logs an informational diagnostic; never on a hot path.
func Infof(format string, args ...interface{}) {
	logger().Printf(llog.InfoLog, format, args...)
}

// Warnf logs a diagnostic for a condition that is slower than expected but
// not a correctness violation (e.g. a meta-thread whose processor affinity
// could not be applied).
func Warnf(format string, args ...interface{}) {
	logger().Printf(llog.WarningLog, format, args...)
}
