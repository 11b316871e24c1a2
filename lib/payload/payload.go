// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload keeps the registry of payloads: named, ordered lists
// of files, each backed by a blob in the blob store.
//
// A payload holds one blob reference per file for as long as it
// exists, so registering a payload increments the reference count of
// every blob it lists and removing it decrements them. Each payload
// belongs to exactly one asset. Each payload is persisted as its own
// CBOR file; loading the registry on startup re-takes the blob
// references, which is how the blob store learns which blobs are still
// in use.
package payload

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/codec"
)

// ErrNotFound is returned for an unknown payload id.
var ErrNotFound = errors.New("payload: not found")

// File is one file of a payload.
type File struct {
	Path           string    `cbor:"path" json:"path"`
	BlobID         uuid.UUID `cbor:"blob_id" json:"fileBlob"`
	CompressedSize int64     `cbor:"compressed_size" json:"compressedSize"`
	Size           int64     `cbor:"size" json:"size"`
}

// Payload is an ordered list of files delivered together.
type Payload struct {
	ID    uuid.UUID `cbor:"id" json:"id"`
	Files []File    `cbor:"files" json:"files"`
}

// BlobReferencer is the part of the blob store payloads need.
type BlobReferencer interface {
	IncreaseReference(id uuid.UUID) error
	DecreaseReference(id uuid.UUID) error
}

// Config configures a Registry.
type Config struct {
	// Directory holds one <id>.cbor file per payload. Created if
	// missing.
	Directory string

	Blobs  BlobReferencer
	Logger *slog.Logger
}

// Registry is the set of payloads. Safe for concurrent use.
type Registry struct {
	directory string
	blobs     BlobReferencer
	logger    *slog.Logger

	mu       sync.RWMutex
	payloads map[uuid.UUID]Payload
}

// Open loads every persisted payload and takes its blob references. A
// payload referring to a blob that no longer exists is logged and
// left out; its file is kept for inspection.
func Open(config Config) (*Registry, error) {
	if config.Blobs == nil || config.Logger == nil {
		panic("payload.Open: Blobs and Logger are required")
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("payload: creating %s: %w", config.Directory, err)
	}

	registry := &Registry{
		directory: config.Directory,
		blobs:     config.Blobs,
		logger:    config.Logger,
		payloads:  make(map[uuid.UUID]Payload),
	}

	entries, err := os.ReadDir(config.Directory)
	if err != nil {
		return nil, fmt.Errorf("payload: listing %s: %w", config.Directory, err)
	}
	for _, dirEntry := range entries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(name, ".cbor") || strings.HasPrefix(name, ".") {
			continue
		}
		var loaded Payload
		if err := codec.ReadFile(filepath.Join(config.Directory, name), &loaded); err != nil {
			registry.logger.Error("skipping unreadable payload", "file", name, "error", err)
			continue
		}
		if err := registry.referenceBlobs(loaded); err != nil {
			registry.logger.Error("skipping payload with missing blobs", "payload_id", loaded.ID, "error", err)
			continue
		}
		registry.payloads[loaded.ID] = loaded
	}
	registry.logger.Info("payloads loaded", "count", len(registry.payloads))
	return registry, nil
}

// Add registers a new payload, taking a blob
// reference for each of its files. On failure nothing is registered
// and no blob reference is left behind.
func (r *Registry) Add(payload Payload) error {
	if payload.ID == uuid.Nil {
		return errors.New("payload: nil id")
	}
	r.mu.RLock()
	_, exists := r.payloads[payload.ID]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("payload: %s already registered", payload.ID)
	}

	if err := r.referenceBlobs(payload); err != nil {
		return err
	}
	if err := codec.WriteFile(r.path(payload.ID), payload); err != nil {
		r.releaseBlobs(payload)
		return fmt.Errorf("payload: persisting %s: %w", payload.ID, err)
	}

	r.mu.Lock()
	r.payloads[payload.ID] = payload
	r.mu.Unlock()

	r.logger.Debug("payload added", "payload_id", payload.ID, "files", len(payload.Files))
	return nil
}

// Remove forgets a payload, deletes its file and releases its blob
// references. Blob release failures are logged and do not stop the
// others.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	found, ok := r.payloads[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.payloads, id)
	r.mu.Unlock()

	if err := os.Remove(r.path(id)); err != nil && !os.IsNotExist(err) {
		r.logger.Error("removing payload file", "payload_id", id, "error", err)
	}
	r.releaseBlobs(found)
	r.logger.Debug("payload removed", "payload_id", id)
	return nil
}

// Get returns a payload.
func (r *Registry) Get(id uuid.UUID) (Payload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found, ok := r.payloads[id]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// IDs returns the id of every registered payload, in no particular
// order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.payloads))
	for id := range r.payloads {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered payloads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payloads)
}

func (r *Registry) path(id uuid.UUID) string {
	return filepath.Join(r.directory, id.String()+".cbor")
}

// referenceBlobs takes one reference per file, undoing the ones taken
// so far if any fails.
func (r *Registry) referenceBlobs(payload Payload) error {
	for i, file := range payload.Files {
		if err := r.blobs.IncreaseReference(file.BlobID); err != nil {
			r.releaseBlobs(Payload{ID: payload.ID, Files: payload.Files[:i]})
			return fmt.Errorf("payload %s: file %s: %w", payload.ID, file.Path, err)
		}
	}
	return nil
}

func (r *Registry) releaseBlobs(payload Payload) {
	for _, file := range payload.Files {
		if err := r.blobs.DecreaseReference(file.BlobID); err != nil {
			r.logger.Error("releasing blob reference",
				"payload_id", payload.ID,
				"blob_id", file.BlobID,
				"path", file.Path,
				"error", err,
			)
		}
	}
}
