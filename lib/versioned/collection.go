// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package versioned

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Delta is what changed in a collection since a version.
type Delta[K comparable, T any] struct {
	// UpdatedObjects holds the values added or changed, oldest change
	// first.
	UpdatedObjects []T `json:"updatedObjects"`

	// RemovedObjects holds the keys removed, limited to keys the
	// client could have seen.
	RemovedObjects []K `json:"removedObjects"`

	// NextUpdate is the version to ask from next.
	NextUpdate uint64 `json:"nextUpdate"`
}

// Empty reports whether nothing changed.
func (d Delta[K, T]) Empty() bool {
	return len(d.UpdatedObjects) == 0 && len(d.RemovedObjects) == 0
}

type item[T any] struct {
	value T

	// version is the collection version of the item's last change.
	// first is the version it was added at; a removed key keeps it so
	// clients that never saw the item are not told of its removal.
	version uint64
	first   uint64
	removed bool
}

// Collection is a keyed set of values tracking the version at which
// each key last changed. Safe for concurrent use.
type Collection[K comparable, T any] struct {
	clone func(T) T

	mu      sync.Mutex
	version uint64
	items   map[K]*item[T]
	live    int
	changed chan struct{}
}

// NewCollection returns an empty collection at version 0. clone has
// the same meaning as for NewObject.
func NewCollection[K comparable, T any](clone func(T) T) *Collection[K, T] {
	if clone == nil {
		clone = func(value T) T { return value }
	}
	return &Collection[K, T]{
		clone:   clone,
		items:   make(map[K]*item[T]),
		changed: make(chan struct{}),
	}
}

// Put adds or replaces the value under key and returns the new
// collection version.
func (c *Collection[K, T]) Put(key K, value T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	existing, ok := c.items[key]
	switch {
	case !ok:
		c.items[key] = &item[T]{value: value, version: c.version, first: c.version}
		c.live++
	case existing.removed:
		// A key coming back after removal keeps its first version:
		// clients that saw it before now see an update.
		existing.value, existing.version, existing.removed = value, c.version, false
		c.live++
	default:
		existing.value, existing.version = value, c.version
	}
	c.broadcast()
	return c.version
}

// Remove deletes key. It reports false, without bumping the version,
// if the key is not present.
func (c *Collection[K, T]) Remove(key K) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.items[key]
	if !ok || existing.removed {
		return c.version, false
	}
	c.version++
	var zero T
	existing.value, existing.version, existing.removed = zero, c.version, true
	c.live--
	c.broadcast()
	return c.version, true
}

// Get returns a copy of the value under key.
func (c *Collection[K, T]) Get(key K) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.items[key]
	if !ok || existing.removed {
		var zero T
		return zero, false
	}
	return c.clone(existing.value), true
}

// Values returns copies of every value, in no particular order.
func (c *Collection[K, T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := make([]T, 0, c.live)
	for _, existing := range c.items {
		if !existing.removed {
			values = append(values, c.clone(existing.value))
		}
	}
	return values
}

// Len returns the number of values.
func (c *Collection[K, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Version returns the current collection version.
func (c *Collection[K, T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// DeltaSince returns what changed after version from, possibly
// nothing.
func (c *Collection[K, T]) DeltaSince(from uint64) Delta[K, T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deltaLocked(from)
}

// WaitForDelta returns the changes after version from as soon as
// there is at least one. If ctx ends first it returns ctx.Err().
func (c *Collection[K, T]) WaitForDelta(ctx context.Context, from uint64) (Delta[K, T], error) {
	for {
		c.mu.Lock()
		if c.version > from {
			delta := c.deltaLocked(from)
			if !delta.Empty() {
				c.mu.Unlock()
				return delta, nil
			}
		}
		wake := c.changed
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Delta[K, T]{}, ctx.Err()
		}
	}
}

// Wait implements Waitable, returning a Delta.
func (c *Collection[K, T]) Wait(ctx context.Context, from uint64) (any, error) {
	delta, err := c.WaitForDelta(ctx, from)
	if err != nil {
		return nil, err
	}
	return delta, nil
}

func (c *Collection[K, T]) deltaLocked(from uint64) Delta[K, T] {
	type change struct {
		key     K
		item    *item[T]
		version uint64
	}
	var updated, removed []change
	for key, existing := range c.items {
		if existing.version <= from {
			continue
		}
		if !existing.removed {
			updated = append(updated, change{key, existing, existing.version})
		} else if existing.first <= from {
			removed = append(removed, change{key, existing, existing.version})
		}
	}
	byVersion := func(a, b change) int { return cmp.Compare(a.version, b.version) }
	slices.SortFunc(updated, byVersion)
	slices.SortFunc(removed, byVersion)

	delta := Delta[K, T]{
		UpdatedObjects: make([]T, 0, len(updated)),
		RemovedObjects: make([]K, 0, len(removed)),
		NextUpdate:     c.version,
	}
	for _, entry := range updated {
		delta.UpdatedObjects = append(delta.UpdatedObjects, c.clone(entry.item.value))
	}
	for _, entry := range removed {
		delta.RemovedObjects = append(delta.RemovedObjects, entry.key)
	}
	return delta
}

// broadcast must be called with c.mu held.
func (c *Collection[K, T]) broadcast() {
	close(c.changed)
	c.changed = make(chan struct{})
}
