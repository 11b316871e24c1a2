// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

func TestRunPollLoopBacksOff(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two failures, then success, then one more failure: the backoff
	// doubles, and resets after the success.
	outcomes := []error{errors.New("refused"), errors.New("refused"), nil, errors.New("reset")}
	calls := make(chan int, 10)
	var count atomic.Int32
	poll := func(ctx context.Context) error {
		n := int(count.Add(1)) - 1
		calls <- n
		if n < len(outcomes) {
			return outcomes[n]
		}
		<-ctx.Done()
		return ctx.Err()
	}

	stopped := make(chan struct{})
	go func() {
		RunPollLoop(ctx, poll, PollConfig{MaxBackoff: 4 * time.Second}, fake, testutil.Logger(t))
		close(stopped)
	}()

	testutil.RequireReceive(t, calls, 5*time.Second, "first poll")
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	testutil.RequireReceive(t, calls, 5*time.Second, "second poll")
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireBlocked(t, calls, 20*time.Millisecond, "retried before the doubled backoff")
	fake.Advance(time.Second)

	testutil.RequireReceive(t, calls, 5*time.Second, "third poll")
	testutil.RequireReceive(t, calls, 5*time.Second, "poll right after a success")
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireReceive(t, calls, 5*time.Second, "retry after reset backoff")

	cancel()
	testutil.RequireClosed(t, stopped, 5*time.Second, "loop did not stop")
}
