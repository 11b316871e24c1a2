// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/blobstore"
	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// DefaultConcurrency is the number of files ingested at once when
// Config.Concurrency is zero.
const DefaultConcurrency = 8

// BlobStore is the part of the blob store ingestion uses.
type BlobStore interface {
	AddBlob(ctx context.Context, reader io.Reader, length int64, sum checksum.Sum) (uuid.UUID, error)
	Lookup(sum checksum.Sum) (blobstore.Info, bool)
	Blob(id uuid.UUID) (blobstore.Info, error)
	IncreaseReference(id uuid.UUID) error
	DecreaseReference(id uuid.UUID) error
	Persist() error
}

// PayloadStore is the part of the payload registry assets use.
type PayloadStore interface {
	Add(p payload.Payload) error
	Remove(id uuid.UUID) error
	IDs() []uuid.UUID
}

// Config configures a Registry.
type Config struct {
	Blobs    BlobStore
	Payloads PayloadStore

	// DatabasePath is the SQLite file holding the asset index.
	DatabasePath string

	// Guard is shared with whatever registers an InUseChecker. A nil
	// Guard gets a private one.
	Guard *DeletionGuard

	// Concurrency bounds the files ingested at once.
	Concurrency int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Registry is the set of assets. Safe for concurrent use.
type Registry struct {
	blobs       BlobStore
	payloads    PayloadStore
	index       *index
	guard       *DeletionGuard
	concurrency int
	clock       clock.Clock
	logger      *slog.Logger

	// assets is the in-memory index. Its own lock is only ever held
	// for the map update, never across I/O.
	assets *versioned.Collection[uuid.UUID, Asset]

	checkersMu sync.Mutex
	checkers   []InUseChecker
}

// Open loads the asset index. Payloads no asset references (left by a
// crash between registering payloads and storing the asset) are
// removed, releasing their blobs.
func Open(ctx context.Context, config Config) (*Registry, error) {
	if config.Blobs == nil || config.Payloads == nil || config.Logger == nil {
		panic("asset.Open: Blobs, Payloads and Logger are required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Guard == nil {
		config.Guard = &DeletionGuard{}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	idx, err := openIndex(config)
	if err != nil {
		return nil, err
	}

	registry := &Registry{
		blobs:       config.Blobs,
		payloads:    config.Payloads,
		index:       idx,
		guard:       config.Guard,
		concurrency: config.Concurrency,
		clock:       config.Clock,
		logger:      config.Logger,
		assets:      versioned.NewCollection[uuid.UUID, Asset](Asset.Clone),
	}

	err = idx.load(ctx,
		func(loaded Asset) { registry.assets.Put(loaded.ID, loaded) },
		func(id string, err error) {
			registry.logger.Error("skipping undecodable asset row", "asset_id", id, "error", err)
		},
	)
	if err != nil {
		idx.close()
		return nil, fmt.Errorf("asset: loading index: %w", err)
	}
	registry.removeOrphanPayloads()

	registry.logger.Info("assets loaded", "count", registry.assets.Len())
	return registry, nil
}

// Close closes the index database.
func (r *Registry) Close() error {
	return r.index.close()
}

// AddInUseChecker registers a checker consulted by RemoveAsset.
func (r *Registry) AddInUseChecker(checker InUseChecker) {
	r.checkersMu.Lock()
	defer r.checkersMu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// Guard returns the deletion guard.
func (r *Registry) Guard() *DeletionGuard {
	return r.guard
}

// Get returns a copy of an asset.
func (r *Registry) Get(id uuid.UUID) (Asset, error) {
	found, ok := r.assets.Get(id)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Exists reports whether id names an asset.
func (r *Registry) Exists(id uuid.UUID) bool {
	_, ok := r.assets.Get(id)
	return ok
}

// List returns every asset sorted by name, then id.
func (r *Registry) List() []Asset {
	assets := r.assets.Values()
	slices.SortFunc(assets, func(a, b Asset) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return assets
}

// Collection returns the versioned collection of assets, for
// long-poll clients.
func (r *Registry) Collection() *versioned.Collection[uuid.UUID, Asset] {
	return r.assets
}

func (r *Registry) removeOrphanPayloads() {
	referenced := make(map[uuid.UUID]bool)
	for _, existing := range r.assets.Values() {
		for _, id := range existing.PayloadIDs() {
			referenced[id] = true
		}
	}
	for _, id := range r.payloads.IDs() {
		if referenced[id] {
			continue
		}
		r.logger.Warn("removing payload no asset references", "payload_id", id)
		if err := r.payloads.Remove(id); err != nil {
			r.logger.Error("removing orphan payload", "payload_id", id, "error", err)
		}
	}
}
