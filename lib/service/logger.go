// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"log/slog"
	"os"
)

// NewLogger creates the standard service logger: a JSON handler
// writing to stderr at Info level, or Debug when verbose. It also sets
// the default slog logger so that third-party code using slog.Info
// etc. gets the same handler.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
