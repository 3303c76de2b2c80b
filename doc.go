// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crunch provides lock-free concurrency primitives built around a
// single intrusive waiter list: an Event, a LIFO Mutex, a counting
// Semaphore, a generic MPMC Stack, and the WaitFor/WaitForAll/WaitForAny
// combinators that compose them through the Waitable contract. Future and
// Promise provide a one-shot value pipe built on Event.
//
// The scheduler subpackage multiplexes cooperative Scheduler implementations
// onto a bounded pool of meta-threads, and platform isolates the OS-level
// collaborators (a blocking semaphore, processor affinity, a pause/yield
// hint, a monotonic clock) this package's lock-free algorithms are built
// on top of; the CAS loops call into it only for the pause/yield hints their
// Backoff issues between attempts.
package crunch
