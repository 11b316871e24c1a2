// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
)

// InfoPart is the form name of the multipart part holding the asset's
// Info as JSON. Every other part is a file, named by its path relative
// to the asset root.
const InfoPart = "info"

// MultipartSource is an asset uploaded as a multipart body and spooled
// to a temporary directory. Close removes the directory.
type MultipartSource struct {
	*FolderSource
	directory string
}

// SpoolMultipart reads every part of reader into a new directory
// under parent and returns the source and the uploaded Info. An upload
// without an info part or without a catalog is rejected.
func SpoolMultipart(reader *multipart.Reader, parent string) (*MultipartSource, Info, error) {
	directory, err := os.MkdirTemp(parent, "upload-*")
	if err != nil {
		return nil, Info{}, fmt.Errorf("asset: creating upload directory: %w", err)
	}
	source := &MultipartSource{
		FolderSource: NewFolderSource(afero.NewOsFs(), directory),
		directory:    directory,
	}

	info, err := source.spool(reader)
	if err != nil {
		source.Close()
		return nil, Info{}, err
	}
	return source, info, nil
}

func (s *MultipartSource) spool(reader *multipart.Reader) (Info, error) {
	var info Info
	var sawInfo, sawCatalog bool
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Info{}, fmt.Errorf("asset: reading upload: %w", err)
		}

		name := part.FormName()
		if name == InfoPart {
			if err := json.NewDecoder(part).Decode(&info); err != nil {
				return Info{}, &launchcatalog.ManifestError{Problems: []string{"invalid info part: " + err.Error()}, Err: err}
			}
			sawInfo = true
			continue
		}
		if !launchcatalog.ValidPath(name) {
			return Info{}, &launchcatalog.ManifestError{Problems: []string{fmt.Sprintf("invalid upload path %q", name)}}
		}
		if name == launchcatalog.FileName {
			sawCatalog = true
		}
		if err := s.write(name, part); err != nil {
			return Info{}, err
		}
	}

	switch {
	case !sawInfo:
		return Info{}, &launchcatalog.ManifestError{Problems: []string{"upload has no " + InfoPart + " part"}}
	case !sawCatalog:
		return Info{}, &launchcatalog.ManifestError{Problems: []string{"upload has no " + launchcatalog.FileName}}
	}
	return info, nil
}

func (s *MultipartSource) write(name string, content io.Reader) error {
	path := filepath.FromSlash(name)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("asset: spooling %s: %w", name, err)
	}
	file, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return &launchcatalog.ManifestError{Problems: []string{fmt.Sprintf("%s uploaded twice", name)}}
	}
	if err != nil {
		return fmt.Errorf("asset: spooling %s: %w", name, err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return fmt.Errorf("asset: spooling %s: %w", name, err)
	}
	return file.Close()
}

// Close deletes the spooled files.
func (s *MultipartSource) Close() error {
	return os.RemoveAll(s.directory)
}
