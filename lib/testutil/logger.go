// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"log/slog"
	"testing"
)

// Logger returns a debug-level text logger writing to t's output.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(t.Output(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}
