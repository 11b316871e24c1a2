// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package rollback undoes the completed steps of a multi-step
// operation when a later step fails.
//
// Each step that commits something pushes the action that reverses it.
// On success the caller commits the scope and the actions are dropped;
// otherwise Unwind runs them newest first:
//
//	scope := rollback.New(logger)
//	defer scope.Unwind(context.WithoutCancel(ctx))
//
//	if err := payloads.Add(p); err != nil {
//	    return err
//	}
//	scope.Push("remove payload "+p.ID.String(), func(context.Context) error {
//	    return payloads.Remove(p.ID)
//	})
//	...
//	scope.Commit()
//
// A failing compensation is logged and the remaining ones still run:
// the error that caused the unwind is the one the caller returns.
package rollback

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Action reverses one committed step.
type Action func(ctx context.Context) error

type step struct {
	name   string
	action Action
}

// Scope is a stack of compensating actions. Safe for concurrent use.
type Scope struct {
	logger *slog.Logger

	mu        sync.Mutex
	steps     []step
	committed bool
}

// New returns an empty scope logging compensation failures to logger.
func New(logger *slog.Logger) *Scope {
	if logger == nil {
		panic("rollback.New: logger is required")
	}
	return &Scope{logger: logger}
}

// Push records the action undoing a step that just committed.
func (s *Scope) Push(name string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{name: name, action: action})
}

// Commit drops every recorded action. Unwind does nothing afterwards.
func (s *Scope) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = nil
	s.committed = true
}

// Unwind runs the recorded actions newest first, unless the scope was
// committed. Each action runs once even if Unwind is called again. It
// returns the number of actions that failed.
func (s *Scope) Unwind(ctx context.Context) int {
	s.mu.Lock()
	steps := s.steps
	s.steps = nil
	committed := s.committed
	s.mu.Unlock()

	if committed || len(steps) == 0 {
		return 0
	}

	var failed int
	for _, step := range slices.Backward(steps) {
		if err := step.action(ctx); err != nil {
			failed++
			s.logger.Error("rollback step failed", "step", step.name, "error", err)
			continue
		}
		s.logger.Debug("rolled back", "step", step.name)
	}
	return failed
}
