// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
)

// Source provides the catalog and files of an asset being added.
// Open may be called concurrently.
type Source interface {
	// Catalog returns the parsed LaunchCatalog.json.
	Catalog(ctx context.Context) (*launchcatalog.Catalog, error)

	// Open returns the content of the file at path (as written in the
	// catalog) and its length.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// FolderSource reads an asset from a directory.
type FolderSource struct {
	fs afero.Fs
}

// NewFolderSource returns a source reading the directory root of fs.
// Catalog paths cannot escape root.
func NewFolderSource(fs afero.Fs, root string) *FolderSource {
	return &FolderSource{fs: afero.NewBasePathFs(fs, root)}
}

func (s *FolderSource) Catalog(ctx context.Context) (*launchcatalog.Catalog, error) {
	data, err := afero.ReadFile(s.fs, launchcatalog.FileName)
	if err != nil {
		return nil, fmt.Errorf("asset: reading %s: %w", launchcatalog.FileName, err)
	}
	return launchcatalog.Parse(data)
}

func (s *FolderSource) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if !launchcatalog.ValidPath(path) {
		return nil, 0, fmt.Errorf("asset: invalid file path %q", path)
	}
	file, err := s.fs.Open(filepath.FromSlash(path))
	if err != nil {
		return nil, 0, fmt.Errorf("asset: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("asset: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("asset: %s is a directory", path)
	}
	return file, info.Size(), nil
}
