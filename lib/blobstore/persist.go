// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/codec"
	"github.com/renderfleet/missioncontrol/lib/compress"
)

// metadataName is the per-folder file listing the blobs it holds.
const metadataName = "metadata.cbor"

type folderMetadata struct {
	Blobs []blobRecord `cbor:"blobs"`
}

type blobRecord struct {
	ID             uuid.UUID    `cbor:"id"`
	Checksum       checksum.Sum `cbor:"checksum"`
	CompressedSize int64        `cbor:"compressed_size"`
	Size           int64        `cbor:"size"`
	Compression    compress.Tag `cbor:"compression"`
}

func (r blobRecord) blob(in *folder) *blob {
	return &blob{
		id:             r.ID,
		sum:            r.Checksum,
		compressedSize: r.CompressedSize,
		size:           r.Size,
		compression:    r.Compression,
		folder:         in,
	}
}

// loadMetadata reads a folder's metadata and reconciles it with the
// directory: records whose file is missing or has the wrong size are
// dropped, and blob files or temporary files nothing records are
// deleted.
func loadMetadata(directory string, logger *slog.Logger) ([]blobRecord, error) {
	var metadata folderMetadata
	err := codec.ReadFile(filepath.Join(directory, metadataName), &metadata)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blobstore: loading %s: %w", directory, err)
	}

	kept := make([]blobRecord, 0, len(metadata.Blobs))
	known := make(map[string]bool, len(metadata.Blobs))
	for _, record := range metadata.Blobs {
		path := filepath.Join(directory, record.ID.String())
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("dropping blob with missing file", "blob_id", record.ID, "path", path, "error", err)
			continue
		}
		if info.Size() != record.CompressedSize {
			logger.Warn("dropping blob with unexpected file size",
				"blob_id", record.ID,
				"path", path,
				"size", info.Size(),
				"expected", record.CompressedSize,
			)
			os.Remove(path)
			continue
		}
		known[record.ID.String()] = true
		kept = append(kept, record)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("blobstore: listing %s: %w", directory, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == metadataName || known[name] {
			continue
		}
		_, parseErr := uuid.Parse(name)
		if parseErr != nil && !strings.HasPrefix(name, incomingPrefix) && !strings.HasPrefix(name, "."+metadataName) {
			continue
		}
		logger.Info("removing orphaned file from storage folder", "path", filepath.Join(directory, name))
		os.Remove(filepath.Join(directory, name))
	}
	return kept, nil
}

// Persist writes the metadata of every folder that changed since the
// last call. A folder whose write fails is retried by the next call.
func (s *Store) Persist() error {
	s.persisting.Lock()
	defer s.persisting.Unlock()

	type pending struct {
		target   *folder
		metadata folderMetadata
	}

	s.mu.Lock()
	var writes []pending
	for _, f := range s.folders {
		if !f.dirty {
			continue
		}
		write := pending{target: f, metadata: folderMetadata{Blobs: []blobRecord{}}}
		for _, b := range s.blobs {
			if b.folder == f {
				write.metadata.Blobs = append(write.metadata.Blobs, blobRecord{
					ID:             b.id,
					Checksum:       b.sum,
					CompressedSize: b.compressedSize,
					Size:           b.size,
					Compression:    b.compression,
				})
			}
		}
		f.dirty = false
		writes = append(writes, write)
	}
	s.mu.Unlock()

	var errs []error
	for _, write := range writes {
		if err := codec.WriteFile(filepath.Join(write.target.path, metadataName), write.metadata); err != nil {
			errs = append(errs, err)
			s.mu.Lock()
			write.target.dirty = true
			s.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// PurgeUnreferenced deletes every blob that has neither references nor
// locks. Call it once all payloads have been loaded; from then on,
// folders added at runtime are purged as they load.
func (s *Store) PurgeUnreferenced() int {
	s.mu.Lock()
	var paths []string
	for _, f := range s.folders {
		paths = append(paths, s.purgeLocked(f)...)
	}
	s.purged = true
	s.mu.Unlock()

	for _, path := range paths {
		s.removeFile(path)
	}
	if len(paths) > 0 {
		s.logger.Info("purged unreferenced blobs", "count", len(paths))
		s.notify()
	}
	return len(paths)
}

// purgeLocked forgets the unreferenced, unlocked blobs of f and returns
// their paths. Must be called with s.mu held for writing.
func (s *Store) purgeLocked(f *folder) []string {
	var paths []string
	for _, b := range s.blobs {
		if b.folder == f && b.references == 0 && b.locks.Load() == 0 {
			paths = append(paths, s.forget(b))
		}
	}
	return paths
}

// fileIdentity distinguishes directories independently of the path
// used to reach them.
type fileIdentity struct {
	device uint64
	inode  uint64
}

func identify(path string) (fileIdentity, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return fileIdentity{}, err
	}
	return fileIdentity{device: uint64(stat.Dev), inode: uint64(stat.Ino)}, nil
}

// availableSpace returns the bytes available to unprivileged writers
// on the filesystem holding path.
func availableSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
