// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

func TestFlightJoinsRunInProgress(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	failure := errors.New("disk full")
	var runs atomic.Int32

	flight := NewFlight("persist", func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return failure
	}, testutil.Logger(t))

	results := make(chan error, 5)
	go func() { results <- flight.Do(context.Background()) }()
	testutil.RequireClosed(t, started, 5*time.Second, "first run never started")

	var callers sync.WaitGroup
	for range 4 {
		callers.Go(func() { results <- flight.Do(context.Background()) })
	}
	testutil.RequireBlocked(t, results, 100*time.Millisecond, "caller returned before the run finished")

	close(release)
	callers.Wait()
	for range 5 {
		if err := testutil.RequireReceive(t, results, 5*time.Second, "waiting for callers"); !errors.Is(err, failure) {
			t.Errorf("Do = %v, want the shared run's error", err)
		}
	}
	if n := runs.Load(); n != 1 {
		t.Errorf("operation ran %d times, want 1", n)
	}
}

func TestFlightCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan error, 1)
	flight := NewFlight("reload", func(ctx context.Context) error {
		<-release
		finished <- ctx.Err()
		return nil
	}, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- flight.Do(ctx) }()
	cancel()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "cancelled caller"); !errors.Is(err, context.Canceled) {
		t.Errorf("Do = %v, want context.Canceled", err)
	}
	close(release)
	if err := testutil.RequireReceive(t, finished, 5*time.Second, "run after caller left"); err != nil {
		t.Errorf("run saw a cancelled context: %v", err)
	}
}

func TestFlightRunEvery(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	calls := make(chan struct{}, 10)
	var runs atomic.Int32
	flight := NewFlight("persist", func(context.Context) error {
		calls <- struct{}{}
		if runs.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		flight.RunEvery(ctx, fake, time.Minute)
		close(stopped)
	}()

	fake.WaitForTimers(1)
	testutil.RequireBlocked(t, calls, 20*time.Millisecond, "ran before the first tick")

	fake.Advance(time.Minute)
	testutil.RequireReceive(t, calls, 5*time.Second, "first tick")
	fake.Advance(time.Minute)
	testutil.RequireReceive(t, calls, 5*time.Second, "retry at the second tick")

	cancel()
	testutil.RequireClosed(t, stopped, 5*time.Second, "RunEvery did not stop")
}
