// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/renderfleet/missioncontrol/lib/clock"
)

// Flight runs an idempotent operation at most once at a time. Callers
// arriving while a run is in progress wait for it and receive its
// result instead of starting another.
type Flight struct {
	name   string
	run    func(context.Context) error
	logger *slog.Logger
	group  singleflight.Group
}

// NewFlight returns a Flight for run. The name appears in logs.
func NewFlight(name string, run func(context.Context) error, logger *slog.Logger) *Flight {
	if run == nil || logger == nil {
		panic("service.NewFlight: run and logger are required")
	}
	return &Flight{name: name, run: run, logger: logger}
}

// Do runs the operation, or joins the run in progress. The run itself
// is not cancelled by ctx, since other callers may be waiting on it;
// ctx only bounds how long this caller waits.
func (f *Flight) Do(ctx context.Context) error {
	result := f.group.DoChan(f.name, func() (any, error) {
		return nil, f.run(context.WithoutCancel(ctx))
	})
	select {
	case outcome := <-result:
		return outcome.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunEvery calls Do on every tick of a clk ticker until ctx is done.
// Failures are logged; the next tick retries.
func (f *Flight) RunEvery(ctx context.Context, clk clock.Clock, interval time.Duration) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := f.Do(ctx); err != nil && ctx.Err() == nil {
			f.logger.Error("periodic run failed, retrying at next tick",
				"operation", f.name,
				"interval", interval,
				"error", err,
			)
		}
	}
}
