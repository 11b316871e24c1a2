// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// Validator rejects a candidate configuration the component it guards
// cannot run with.
type Validator func(next *Config) error

// Reactor brings a running component in line with the next
// configuration.
type Reactor func(ctx context.Context, previous, next *Config) error

type namedValidator struct {
	name     string
	validate Validator
}

type namedReactor struct {
	name  string
	react Reactor
}

// Service owns the current configuration. Changes go through Apply,
// one at a time.
type Service struct {
	logger *slog.Logger

	// applying serializes Apply calls and guards the hook lists.
	applying   sync.Mutex
	validators []namedValidator
	reactors   []namedReactor

	current *versioned.Object[Config]
}

// NewService returns a service holding initial, which is assumed to be
// the configuration the components were built from.
func NewService(initial *Config, logger *slog.Logger) *Service {
	if initial == nil || logger == nil {
		panic("config.NewService: initial configuration and logger are required")
	}
	return &Service{
		logger:  logger,
		current: versioned.NewObject(initial.Clone(), Config.Clone),
	}
}

// AddValidator registers a validator. Validators run in registration
// order after Config.Validate.
func (s *Service) AddValidator(name string, validate Validator) {
	s.applying.Lock()
	defer s.applying.Unlock()
	s.validators = append(s.validators, namedValidator{name: name, validate: validate})
}

// AddReactor registers a reactor. Reactors run in registration order.
func (s *Service) AddReactor(name string, react Reactor) {
	s.applying.Lock()
	defer s.applying.Unlock()
	s.reactors = append(s.reactors, namedReactor{name: name, react: react})
}

// Current returns the configuration in effect.
func (s *Service) Current() Config {
	current, _ := s.current.Get()
	return current
}

// Object returns the configuration as a versioned object.
func (s *Service) Object() *versioned.Object[Config] {
	return s.current
}

// Apply validates next and hands it to every reactor. Validation
// failures wrap ErrInvalid and change nothing. When a reactor fails the
// reactors after it are skipped and the previous configuration stays
// current; reactors that already ran are not undone, so the failing
// change can be retried.
func (s *Service) Apply(ctx context.Context, next Config) error {
	s.applying.Lock()
	defer s.applying.Unlock()

	next = next.Clone()
	if err := next.Validate(); err != nil {
		return err
	}
	for _, validator := range s.validators {
		if err := validator.validate(&next); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, validator.name, err)
		}
	}

	previous, _ := s.current.Get()
	for _, reactor := range s.reactors {
		if err := reactor.react(ctx, &previous, &next); err != nil {
			s.logger.Error("applying configuration failed",
				"reactor", reactor.name,
				"error", err,
			)
			return fmt.Errorf("config: applying %s: %w", reactor.name, err)
		}
	}

	version := s.current.Set(next)
	s.logger.Info("configuration applied",
		"version", version,
		"storage_folders", len(next.StorageFolders),
	)
	return nil
}
