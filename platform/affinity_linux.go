// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import "golang.org/x/sys/unix"

// Affinity represents a processor affinity mask: the set of logical
// processors a meta-thread (scheduler package) is pinned to while it is
// running a Context.
type Affinity struct {
	set unix.CPUSet
}

// SetThreadAffinity pins the calling OS thread to the processors in a and
// returns the previous mask so the caller can restore it later, mirroring
// spec.md §6's set_current_thread_affinity(mask) -> old_mask contract.
//
// Grounded on the teacher's own golang.org/x/sys dependency and its
// ipaux_linux.go/ipaux_bsd.go per-platform split; generalized from network
// interface enumeration to unix.SchedSetaffinity/SchedGetaffinity.
//
// Go does not let a goroutine control which OS thread it runs on without
// runtime.LockOSThread, so callers of SetThreadAffinity are expected to have
// already called that (the scheduler package's Context.run does, since it is
// the one caller that cares about affinity at all).
func SetThreadAffinity(a Affinity) (old Affinity, err error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return Affinity{}, err
	}
	if err := unix.SchedSetaffinity(0, &a.set); err != nil {
		return Affinity{}, err
	}
	return Affinity{set: prev}, nil
}

// AffinityFromProcessors builds an Affinity mask pinning to the given
// logical processor indices.
func AffinityFromProcessors(processors ...int) Affinity {
	var a Affinity
	for _, p := range processors {
		a.set.Set(p)
	}
	return a
}

// NumProcessors returns the number of logical processors available to the
// process, matching spec.md §6's get_system_num_processors().
func NumProcessors() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 1
	}
	return set.Count()
}
