// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package versioned

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renderfleet/missioncontrol/lib/clock"
)

// DefaultTimeout bounds a Catalog wait when none is configured. It is
// kept below the idle timeout of common reverse proxies.
const DefaultTimeout = 3 * time.Minute

// ErrUnknownName is returned when a request names nothing registered.
var ErrUnknownName = errors.New("versioned: unknown name")

// Waitable is anything a Catalog can wait on. Wait must report an
// already-ready result even when ctx is already done.
type Waitable interface {
	Wait(ctx context.Context, from uint64) (any, error)
}

// Request asks for a named waitable's state after FromVersion.
type Request struct {
	Name        string
	FromVersion uint64
}

// Catalog is a set of named waitables. Safe for concurrent use.
type Catalog struct {
	clock   clock.Clock
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]Waitable
}

// NewCatalog returns an empty catalog whose waits last at most
// timeout (DefaultTimeout if zero).
func NewCatalog(clk clock.Clock, timeout time.Duration) *Catalog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Catalog{clock: clk, timeout: timeout, entries: make(map[string]Waitable)}
}

// Register adds a waitable under name. Names are registered once.
func (c *Catalog) Register(name string, waitable Waitable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("versioned: %q already registered", name)
	}
	c.entries[name] = waitable
	return nil
}

// Wait waits on every requested waitable at once and returns as soon
// as any is ready, with the results of all those ready at that point,
// keyed by name. When the timeout elapses first the result is empty.
// Unknown names fail the whole call before anything waits. A done ctx
// returns ctx.Err().
func (c *Catalog) Wait(ctx context.Context, requests []Request) (map[string]any, error) {
	waitables := make([]Waitable, len(requests))
	c.mu.RLock()
	for i, request := range requests {
		waitable, ok := c.entries[request.Name]
		if !ok {
			c.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, request.Name)
		}
		waitables[i] = waitable
	}
	c.mu.RUnlock()

	ready := make(map[string]any)
	if len(requests) == 0 {
		return ready, nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name  string
		value any
		err   error
	}
	results := make(chan result, len(requests))
	var group sync.WaitGroup
	for i, request := range requests {
		group.Go(func() {
			value, err := waitables[i].Wait(waitCtx, request.FromVersion)
			results <- result{name: request.Name, value: value, err: err}
		})
	}

	pending := len(requests)
	collect := func(r result) {
		pending--
		if r.err == nil {
			ready[r.name] = r.value
		}
	}

	select {
	case first := <-results:
		collect(first)
	case <-c.clock.After(c.timeout):
	case <-ctx.Done():
		cancel()
		group.Wait()
		return nil, ctx.Err()
	}

	// Whatever else is ready by now goes in the same response: the
	// waits see a cancelled context and return at once, with their
	// value if they have one.
	cancel()
	group.Wait()
	for range pending {
		collect(<-results)
	}
	return ready, nil
}
