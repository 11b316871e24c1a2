// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/compress"
)

// FolderConfig describes one storage folder.
type FolderConfig struct {
	Path        string
	MaximumSize int64
}

// FolderStatus is a point-in-time view of a storage folder.
type FolderStatus struct {
	Path        string `json:"path"`
	CurrentSize int64  `json:"currentSize"`
	ZombiesSize int64  `json:"zombiesSize"`
	MaximumSize int64  `json:"maximumSize"`
}

// Info describes a stored blob.
type Info struct {
	ID             uuid.UUID    `json:"id"`
	Checksum       checksum.Sum `json:"checksum"`
	CompressedSize int64        `json:"compressedSize"`
	Size           int64        `json:"size"`
	Compression    compress.Tag `json:"compression"`
	References     int64        `json:"references"`
	Locks          int64        `json:"locks"`
}

// Config configures a Store.
type Config struct {
	// Folders is the initial folder set. At least one is required.
	Folders []FolderConfig

	// Compression is the codec new blobs are written with.
	Compression compress.Tag

	// OnChange, when set, is called after every change to folder
	// usage, outside the store's locks.
	OnChange func()

	// Logger is required.
	Logger *slog.Logger
}

// Store is the file blob store. All methods are safe for concurrent
// use.
type Store struct {
	logger      *slog.Logger
	compression compress.Tag
	onChange    func()

	// mu guards the folder set, the blob tables, reference counts,
	// and folder accounting. Lock counts are atomic so Lock only
	// needs the read side.
	mu         sync.RWMutex
	folders    []*folder
	blobs      map[uuid.UUID]*blob
	byChecksum map[checksum.Sum]*blob

	// changed is closed and replaced whenever a lock count drops to
	// zero or an in-flight add releases its reservation. Folder
	// changes wait on it. Guarded by mu.
	changed chan struct{}

	// reconfiguring serializes folder set changes and relocations.
	reconfiguring sync.Mutex

	// persisting is held for a whole Persist, so a call returns only
	// after every change made before it is on disk.
	persisting sync.Mutex

	// purged is set once PurgeUnreferenced has run; folders added
	// afterwards purge their unreferenced blobs immediately.
	purged bool
}

type folder struct {
	path    string
	maximum int64

	// used counts the compressed size of every blob in the folder,
	// zombies included. reserved counts bytes promised to in-flight
	// adds and relocations.
	used     int64
	zombies  int64
	reserved int64

	// draining folders receive no new blobs.
	draining bool

	// dirty marks metadata that needs to be written by Persist.
	dirty bool

	identity fileIdentity
}

func (f *folder) free() int64 {
	return f.maximum - f.used - f.reserved
}

type blob struct {
	id             uuid.UUID
	sum            checksum.Sum
	compressedSize int64
	size           int64
	compression    compress.Tag

	folder     *folder
	references int64
	locks      atomic.Int64

	// zombie is set while the blob has no reference but is kept by
	// locks; its size is then counted in folder.zombies.
	zombie  bool
	deleted bool
}

func (b *blob) path() string {
	return filepath.Join(b.folder.path, b.id.String())
}

func (b *blob) info() Info {
	return Info{
		ID:             b.id,
		Checksum:       b.sum,
		CompressedSize: b.compressedSize,
		Size:           b.size,
		Compression:    b.compression,
		References:     b.references,
		Locks:          b.locks.Load(),
	}
}

// Open creates a store over the configured folders, loading the blobs
// each folder already holds. Loaded blobs start with no references.
func Open(config Config) (*Store, error) {
	if config.Logger == nil {
		panic("blobstore.Open: Logger is required")
	}
	if len(config.Folders) == 0 {
		return nil, fmt.Errorf("blobstore: no storage folder configured")
	}

	store := &Store{
		logger:      config.Logger,
		compression: config.Compression,
		onChange:    config.OnChange,
		blobs:       make(map[uuid.UUID]*blob),
		byChecksum:  make(map[checksum.Sum]*blob),
		changed:     make(chan struct{}),
	}
	for _, folderConfig := range config.Folders {
		if err := store.addFolder(folderConfig); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// FolderStatus returns a snapshot of every folder, in configuration
// order.
func (s *Store) FolderStatus() []FolderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]FolderStatus, 0, len(s.folders))
	for _, f := range s.folders {
		statuses = append(statuses, FolderStatus{
			Path:        f.path,
			CurrentSize: f.used,
			ZombiesSize: f.zombies,
			MaximumSize: f.maximum,
		})
	}
	return statuses
}

// Blob returns the description of a blob.
func (s *Store) Blob(id uuid.UUID) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[id]
	if !ok {
		return Info{}, ErrNotFound
	}
	return b.info(), nil
}

// Lookup returns the blob holding content with the given checksum.
func (s *Store) Lookup(sum checksum.Sum) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byChecksum[sum]
	if !ok {
		return Info{}, false
	}
	return b.info(), true
}

// Len returns the number of blobs, zombies included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// chooseFolder picks the eligible folder with the most free space,
// ties broken by path. Must be called with s.mu held.
func (s *Store) chooseFolder(needed int64, exclude *folder) (*folder, error) {
	var candidates []*folder
	var largest int64
	for _, f := range s.folders {
		if f == exclude || f.draining {
			continue
		}
		largest = max(largest, f.free())
		if f.free() >= needed {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, &CapacityError{Needed: needed, Largest: largest}
	}
	return slices.MinFunc(candidates, func(a, b *folder) int {
		if c := cmp.Compare(b.free(), a.free()); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	}), nil
}

// findFolder must be called with s.mu held.
func (s *Store) findFolder(path string) *folder {
	path = filepath.Clean(path)
	for _, f := range s.folders {
		if f.path == path {
			return f
		}
	}
	return nil
}

// signal wakes everything waiting on s.changed. Must be called with
// s.mu held for writing.
func (s *Store) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// forget removes b from the tables and its folder's accounting. The
// caller deletes the file after releasing s.mu. Must be called with
// s.mu held for writing.
func (s *Store) forget(b *blob) string {
	path := b.path()
	if b.zombie {
		b.folder.zombies -= b.compressedSize
		b.zombie = false
	}
	delete(s.blobs, b.id)
	if s.byChecksum[b.sum] == b {
		delete(s.byChecksum, b.sum)
	}
	b.folder.used -= b.compressedSize
	b.folder.dirty = true
	b.deleted = true
	return path
}

func (s *Store) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("removing blob file", "path", path, "error", err)
	}
}
