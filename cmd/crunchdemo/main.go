// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command crunchdemo exercises the crunch package's primitives and
// meta-scheduler end to end: a handful of goroutines contend for a Mutex
// and a Semaphore, a Future is resolved from a worker, and a small set of
// counter-driven Schedulers are run under the meta-scheduler for a
// configurable duration. Grounded on the teacher's own cmd/ subcommands
// (cmd/pflagvar, cmd/flagvar), which likewise wire pflag flags straight
// into a short-lived demonstration program rather than a long-running
// service.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ancapdev/crunch"
	"github.com/ancapdev/crunch/scheduler"
)

var (
	workers  = pflag.IntP("workers", "w", 4, "number of goroutines contending for the mutex/semaphore")
	permits  = pflag.Int64P("permits", "p", 2, "initial semaphore permit count")
	runFor   = pflag.DurationP("run-for", "r", 2200*time.Millisecond, "how long to drive the meta-scheduler demo")
	verbose  = pflag.BoolP("verbose", "v", false, "print each demo step as it happens")
)

func main() {
	pflag.Parse()

	runMutexSemaphoreDemo(*workers, *permits)
	runFutureDemo()
	if err := runSchedulerDemo(*runFor); err != nil {
		fmt.Fprintln(os.Stderr, "crunchdemo: scheduler demo:", err)
		os.Exit(1)
	}
}

func logf(format string, args ...interface{}) {
	if *verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// runMutexSemaphoreDemo spins up n goroutines that each take a shared
// Mutex, increment a counter, release it, then acquire a permit from a
// Semaphore and hand it back before finishing; a WaitForAll gate ensures the demo only
// prints its summary after all workers have fully completed.
func runMutexSemaphoreDemo(n int, initialPermits int64) {
	mu := crunch.NewMutex()
	sem := crunch.NewSemaphore(initialPermits)
	counter := 0

	done := make([]*crunch.Event, n)
	for i := range done {
		done[i] = crunch.NewEvent()
	}

	for i := 0; i < n; i++ {
		i := i
		go func() {
			mu.Lock()
			counter++
			logf("worker %d incremented counter to %d", i, counter)
			mu.Unlock()

			sem.Wait()
			logf("worker %d acquired a semaphore permit", i)
			sem.Post()

			done[i].Set()
		}()
	}

	waitables := make([]crunch.Waitable, n)
	for i, e := range done {
		waitables[i] = e
	}
	WaitForAllEvents(waitables)
	fmt.Printf("mutex/semaphore demo: %d workers incremented the counter to %d\n", n, counter)
}

// WaitForAllEvents is a thin adapter so main.go reads as calling the
// public combinator directly rather than unpacking WaitMode at each call
// site.
func WaitForAllEvents(ws []crunch.Waitable) {
	crunch.WaitForAll(crunch.WaitModeBlock(256), ws...)
}

// runFutureDemo resolves a Future from a worker goroutine and reads it back
// via Get, demonstrating the Promise/Future pipe.
func runFutureDemo() {
	promise, future := crunch.NewPromise[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = promise.Resolve(42)
	}()
	value, err := future.Get()
	if err != nil {
		fmt.Println("future demo: unexpected error:", err)
		return
	}
	fmt.Println("future demo: resolved to", value)
}

// counterScheduler is a minimal scheduler.Scheduler that counts down from a
// target and reports StateIdle once exhausted, re-arming a crunch.Event as
// its HasWork waitable so it can be manually reawakened.
type counterScheduler struct {
	id       string
	remaining int
	hasWork  *crunch.Event
	steps    int
}

func newCounterScheduler(id string, target int) *counterScheduler {
	return &counterScheduler{id: id, remaining: target, hasWork: crunch.NewEvent()}
}

func (c *counterScheduler) Step() scheduler.State {
	if c.remaining <= 0 {
		c.hasWork.Reset()
		return scheduler.StateIdle
	}
	c.remaining--
	c.steps++
	return scheduler.StateWorking
}

func (c *counterScheduler) HasWork() crunch.Waitable {
	return c.hasWork
}

// runSchedulerDemo registers two counterSchedulers under a MetaScheduler
// with one meta-thread and drives them until duration elapses, printing how
// many steps each scheduler ran.
func runSchedulerDemo(duration time.Duration) error {
	config := scheduler.NewConfig()
	a := newCounterScheduler("a", 50)
	b := newCounterScheduler("b", 30)
	if err := config.Register("a", a, scheduler.Some(5)); err != nil {
		return err
	}
	if err := config.Register("b", b, scheduler.All()); err != nil {
		return err
	}

	ms := scheduler.New(config)
	if _, err := ms.CreateMetaThread(scheduler.MetaThreadConfig{}); err != nil {
		return err
	}

	until := crunch.NewEvent()
	time.AfterFunc(duration, func() { until.Set() })

	ctx := ms.AcquireContext("crunchdemo")
	defer ctx.Release()
	ctx.Run(until)

	fmt.Printf("scheduler demo: scheduler a ran %d steps, scheduler b ran %d steps\n", a.steps, b.steps)
	return nil
}
