// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/compress"
)

// reference takes one reference on b, reviving it if it was a zombie.
// Must be called with s.mu held for writing.
func (s *Store) reference(b *blob) {
	if b.zombie {
		b.folder.zombies -= b.compressedSize
		b.zombie = false
	}
	b.references++
}

// IncreaseReference takes one more reference on a blob.
func (s *Store) IncreaseReference(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[id]
	if !ok {
		return ErrNotFound
	}
	s.reference(b)
	return nil
}

// DecreaseReference releases one reference on a blob. When the last
// reference goes the file is deleted, unless the blob is locked, in
// which case deletion waits for the last lock's release.
func (s *Store) DecreaseReference(id uuid.UUID) error {
	s.mu.Lock()
	b, ok := s.blobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if b.references == 0 {
		s.mu.Unlock()
		return fmt.Errorf("blob %s: %w", id, ErrNoReference)
	}
	b.references--
	if b.references > 0 {
		s.mu.Unlock()
		return nil
	}
	if b.locks.Load() > 0 {
		b.folder.zombies += b.compressedSize
		b.zombie = true
		s.mu.Unlock()
		s.logger.Debug("blob unreferenced while locked", "blob_id", id)
		s.notify()
		return nil
	}
	path := s.forget(b)
	s.mu.Unlock()

	s.removeFile(path)
	s.logger.Debug("blob deleted", "blob_id", id)
	s.notify()
	return nil
}

// BlobLock keeps a blob's file in place until Release is called.
type BlobLock struct {
	Info

	// Path is the blob's file. It stays valid until Release.
	Path string

	store   *Store
	blob    *blob
	release sync.Once
}

// Lock leases a blob. The file is neither deleted nor moved while the
// lease is held, even if its last reference is released meanwhile.
func (s *Store) Lock(id uuid.UUID) (*BlobLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.locks.Add(1)
	return &BlobLock{
		Info:  b.info(),
		Path:  b.path(),
		store: s,
		blob:  b,
	}, nil
}

// Release ends the lease. Calling it more than once has no effect.
func (l *BlobLock) Release() {
	l.release.Do(func() {
		l.store.unlock(l.blob)
	})
}

// Open returns a reader over the blob's uncompressed content. The lock
// must be held until the reader is closed.
func (l *BlobLock) Open() (io.ReadCloser, error) {
	file, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: opening blob %s: %w", l.ID, err)
	}
	decompressor, err := compress.NewReader(file, l.Compression)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &blobReader{ReadCloser: decompressor, file: file}, nil
}

type blobReader struct {
	io.ReadCloser
	file *os.File
}

func (r *blobReader) Close() error {
	r.ReadCloser.Close()
	return r.file.Close()
}

func (s *Store) unlock(b *blob) {
	if b.locks.Add(-1) > 0 {
		return
	}

	s.mu.Lock()
	s.signal()
	if b.deleted || !b.zombie || b.locks.Load() > 0 {
		s.mu.Unlock()
		return
	}
	path := s.forget(b)
	s.mu.Unlock()

	s.removeFile(path)
	s.logger.Debug("zombie blob deleted", "blob_id", b.id)
	s.notify()
}
