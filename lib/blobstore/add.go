// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/compress"
)

// incomingPrefix names temporary files of in-flight adds and moves.
const incomingPrefix = ".incoming-"

// AddBlob stores length bytes read from content, declared to hash to
// sum, and returns the blob id holding one new reference.
//
// Known content is not read at all: the existing blob gains a
// reference. Otherwise the content is compressed into a temporary file
// in the folder with the most free space (at least length bytes), its
// checksum is verified, and only then is the blob registered. A
// mismatch returns *IntegrityError; no folder with room returns
// *CapacityError; cancelling ctx aborts the copy. In every failure
// case the temporary file is removed and the store is unchanged.
func (s *Store) AddBlob(ctx context.Context, content io.Reader, length int64, sum checksum.Sum) (uuid.UUID, error) {
	if length < 0 {
		return uuid.Nil, fmt.Errorf("blobstore: negative content length %d", length)
	}

	s.mu.Lock()
	if existing, ok := s.byChecksum[sum]; ok {
		s.reference(existing)
		s.mu.Unlock()
		return existing.id, nil
	}
	target, err := s.chooseFolder(length, nil)
	if err != nil {
		s.mu.Unlock()
		return uuid.Nil, err
	}
	target.reserved += length
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		target.reserved -= length
		s.signal()
		s.mu.Unlock()
	}

	temporaryPath, compressedSize, err := s.writeIncoming(ctx, target.path, content, length, sum)
	if err != nil {
		release()
		return uuid.Nil, err
	}

	s.mu.Lock()
	target.reserved -= length
	s.signal()

	// Same content committed by a concurrent add while we were
	// writing ours.
	if existing, ok := s.byChecksum[sum]; ok {
		s.reference(existing)
		s.mu.Unlock()
		os.Remove(temporaryPath)
		return existing.id, nil
	}

	if compressedSize > target.free() {
		free := target.free()
		s.mu.Unlock()
		os.Remove(temporaryPath)
		return uuid.Nil, &CapacityError{Needed: compressedSize, Largest: free}
	}

	added := &blob{
		id:             uuid.New(),
		sum:            sum,
		compressedSize: compressedSize,
		size:           length,
		compression:    s.compression,
		folder:         target,
		references:     1,
	}
	if err := os.Rename(temporaryPath, added.path()); err != nil {
		s.mu.Unlock()
		os.Remove(temporaryPath)
		return uuid.Nil, fmt.Errorf("blobstore: committing blob: %w", err)
	}
	s.blobs[added.id] = added
	s.byChecksum[sum] = added
	target.used += compressedSize
	target.dirty = true
	s.mu.Unlock()

	s.logger.Debug("blob added",
		"blob_id", added.id,
		"checksum", sum,
		"size", length,
		"compressed_size", compressedSize,
		"folder", target.path,
	)
	s.notify()
	return added.id, nil
}

// writeIncoming compresses content into a new temporary file under
// directory and verifies its length and checksum. It returns the
// temporary path and the number of bytes written to it.
func (s *Store) writeIncoming(ctx context.Context, directory string, content io.Reader, length int64, sum checksum.Sum) (string, int64, error) {
	file, err := os.CreateTemp(directory, incomingPrefix+"*")
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: creating temporary file: %w", err)
	}
	temporaryPath := file.Name()

	fail := func(err error) (string, int64, error) {
		file.Close()
		os.Remove(temporaryPath)
		return "", 0, err
	}

	counter := &countingWriter{writer: file}
	compressor, err := compress.NewWriter(counter, s.compression)
	if err != nil {
		return fail(err)
	}
	hasher := checksum.NewHasher()

	source := io.LimitReader(&contextReader{ctx: ctx, reader: content}, length)
	copied, err := io.Copy(io.MultiWriter(compressor, hasher), source)
	if err != nil {
		compressor.Close()
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fail(ctxErr)
		}
		return fail(fmt.Errorf("blobstore: reading content: %w", err))
	}
	if copied != length {
		compressor.Close()
		return fail(fmt.Errorf("blobstore: content ended after %d of %d bytes: %w", copied, length, io.ErrUnexpectedEOF))
	}
	if err := compressor.Close(); err != nil {
		return fail(fmt.Errorf("blobstore: finishing compression: %w", err))
	}
	if actual := hasher.Sum(); actual != sum {
		return fail(&IntegrityError{Expected: sum, Actual: actual})
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("blobstore: syncing %s: %w", filepath.Base(temporaryPath), err))
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", 0, fmt.Errorf("blobstore: closing %s: %w", filepath.Base(temporaryPath), err)
	}
	return temporaryPath, counter.written, nil
}

type countingWriter struct {
	writer  io.Writer
	written int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.written += int64(n)
	return n, err
}

// contextReader fails reads once ctx is done, so a long copy stops at
// its next read after cancellation.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}
