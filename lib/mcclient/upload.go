// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package mcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
)

// UploadAsset streams every regular file under root in fs to the
// daemon as a multipart upload, one part per file named by its
// slash-separated path relative to root. The folder must hold the
// catalog file at its top level.
func (c *Client) UploadAsset(ctx context.Context, info asset.Info, fs afero.Fs, root string) (uuid.UUID, error) {
	if _, err := fs.Stat(root); err != nil {
		return uuid.Nil, fmt.Errorf("mcclient: upload folder: %w", err)
	}

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		writer.CloseWithError(writeUpload(form, info, fs, root))
	}()
	defer reader.Close()

	var response api.AddAssetResponse
	_, err := c.do(ctx, http.MethodPost, "/assets/upload", reader, form.FormDataContentType(), &response)
	return response.ID, err
}

func writeUpload(form *multipart.Writer, info asset.Info, fs afero.Fs, root string) error {
	part, err := form.CreateFormField(asset.InfoPart)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(info); err != nil {
		return err
	}

	err = afero.Walk(fs, root, func(path string, entry os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !entry.Mode().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return copyPart(form, fs, path, filepath.ToSlash(relative))
	})
	if err != nil {
		return fmt.Errorf("mcclient: reading upload folder: %w", err)
	}
	return form.Close()
}

func copyPart(form *multipart.Writer, fs afero.Fs, path, name string) error {
	file, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	part, err := form.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
