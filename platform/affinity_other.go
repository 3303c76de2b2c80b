// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package platform

import "runtime"

// Affinity is a no-op placeholder on platforms without a cheap syscall for
// per-thread processor affinity (darwin, windows). SetThreadAffinity still
// honors spec.md §6's signature so the scheduler package does not need a
// build-tagged call site; it simply reports no previous mask and does not
// restrict scheduling.
type Affinity struct{}

func SetThreadAffinity(a Affinity) (old Affinity, err error) {
	return Affinity{}, nil
}

func AffinityFromProcessors(processors ...int) Affinity {
	return Affinity{}
}

func NumProcessors() int {
	return runtime.NumCPU()
}
