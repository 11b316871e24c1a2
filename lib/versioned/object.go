// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package versioned

import (
	"context"
	"sync"
)

// Object is a versioned value. Safe for concurrent use.
type Object[T any] struct {
	clone func(T) T

	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
}

// Snapshot is a copy of an object's value with its version. It is
// what a Catalog of objects returns for each ready name.
type Snapshot[T any] struct {
	Value   T      `json:"value"`
	Version uint64 `json:"version"`
}

// NewObject returns an object holding initial at version 1. Readers
// receive clone(value); a nil clone hands out the value itself, which
// is only correct for types without shared references.
func NewObject[T any](initial T, clone func(T) T) *Object[T] {
	if clone == nil {
		clone = func(value T) T { return value }
	}
	return &Object[T]{
		clone:   clone,
		value:   initial,
		version: 1,
		changed: make(chan struct{}),
	}
}

// Get returns a copy of the value and its version.
func (o *Object[T]) Get() (T, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clone(o.value), o.version
}

// Version returns the current version.
func (o *Object[T]) Version() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}

// Update calls mutate with the value under the object's lock. The
// version is bumped and waiters woken only when mutate reports a
// change. Returns the version after the call.
func (o *Object[T]) Update(mutate func(*T) bool) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mutate(&o.value) {
		o.version++
		close(o.changed)
		o.changed = make(chan struct{})
	}
	return o.version
}

// Set replaces the value and bumps the version.
func (o *Object[T]) Set(value T) uint64 {
	return o.Update(func(current *T) bool {
		*current = value
		return true
	})
}

// WaitForVersion returns the value once its version is greater than
// from. It returns immediately if it already is. If ctx ends first it
// returns ctx.Err().
func (o *Object[T]) WaitForVersion(ctx context.Context, from uint64) (T, uint64, error) {
	for {
		o.mu.Lock()
		if o.version > from {
			value, version := o.clone(o.value), o.version
			o.mu.Unlock()
			return value, version, nil
		}
		wake := o.changed
		o.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, 0, ctx.Err()
		}
	}
}

// Wait implements Waitable, returning a Snapshot.
func (o *Object[T]) Wait(ctx context.Context, from uint64) (any, error) {
	value, version, err := o.WaitForVersion(ctx, from)
	if err != nil {
		return nil, err
	}
	return Snapshot[T]{Value: value, Version: version}, nil
}
