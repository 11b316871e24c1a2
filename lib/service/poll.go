// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/renderfleet/missioncontrol/lib/clock"
)

// PollConfig configures RunPollLoop.
type PollConfig struct {
	// MaxBackoff is the maximum duration between retry attempts on
	// transient errors. The loop uses exponential backoff starting at
	// 1 second. Default: 30 seconds.
	MaxBackoff time.Duration
}

// PollFunc performs one long-poll round trip and handles whatever it
// returns. It carries its own version bookkeeping between calls.
type PollFunc func(ctx context.Context) error

// RunPollLoop calls poll back to back until ctx is cancelled. The
// server holds each request open until something changes or its
// timeout passes, so no delay is inserted between successful polls.
//
// On errors the loop retries with exponential backoff (1 second to
// config.MaxBackoff). On context cancellation the loop returns
// cleanly.
func RunPollLoop(ctx context.Context, poll PollFunc, config PollConfig, clk clock.Clock, logger *slog.Logger) {
	maxBackoff := config.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("poll failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-clk.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = time.Second
	}
}
