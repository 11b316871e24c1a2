// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/renderfleet/missioncontrol/lib/checksum"
)

var (
	// ErrNotFound is returned for an unknown blob id.
	ErrNotFound = errors.New("blobstore: blob not found")

	// ErrNoReference is returned by DecreaseReference on a blob whose
	// reference count is already zero.
	ErrNoReference = errors.New("blobstore: blob has no reference to release")

	// ErrFolderNotFound is returned when updating or removing a path
	// that is not a configured storage folder.
	ErrFolderNotFound = errors.New("blobstore: storage folder not found")

	// ErrFolderExists is returned when adding a folder whose path, or
	// the directory it resolves to, is already configured.
	ErrFolderExists = errors.New("blobstore: storage folder already configured")
)

// CapacityError reports that no storage folder can take Needed bytes.
// Largest is the most free space any eligible folder had.
type CapacityError struct {
	Needed  int64
	Largest int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("blobstore: insufficient storage: need %s, largest free space is %s",
		humanize.IBytes(uint64(e.Needed)), humanize.IBytes(uint64(max(e.Largest, 0))))
}

// IntegrityError reports content whose checksum differs from the one
// it was declared with. Nothing is stored when it is returned.
type IntegrityError struct {
	Expected checksum.Sum
	Actual   checksum.Sum
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("blobstore: checksum mismatch: declared %s, content hashes to %s", e.Expected, e.Actual)
}
