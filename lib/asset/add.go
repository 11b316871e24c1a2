// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/renderfleet/missioncontrol/lib/blobstore"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/rollback"
)

// AddAsset ingests the asset source describes and returns its id.
//
// The catalog is validated before anything is stored. On any failure
// (invalid catalog, unreadable file, content not matching its
// checksum, no storage left, ctx cancelled) nothing of the asset
// remains and the error is returned. Content mismatches are reported
// as a *launchcatalog.ManifestError wrapping the
// *blobstore.IntegrityError.
func (r *Registry) AddAsset(ctx context.Context, info Info, source Source) (uuid.UUID, error) {
	if info.Name == "" {
		return uuid.Nil, &launchcatalog.ManifestError{Problems: []string{"asset name is empty"}}
	}
	catalog, err := source.Catalog(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if err := launchcatalog.Validate(catalog); err != nil {
		return uuid.Nil, err
	}

	var files []launchcatalog.PayloadFile
	for _, catalogPayload := range catalog.Payloads {
		for _, file := range catalogPayload.Files {
			if !slices.ContainsFunc(files, func(f launchcatalog.PayloadFile) bool { return f.Path == file.Path }) {
				files = append(files, file)
			}
		}
	}

	// Every blob obtained here holds one exploratory reference, given
	// back whatever happens: the payloads take their own.
	blobs := make([]*blobstore.Info, len(files))
	defer func() {
		for _, blob := range slices.Backward(blobs) {
			if blob == nil {
				continue
			}
			if err := r.blobs.DecreaseReference(blob.ID); err != nil {
				r.logger.Error("releasing ingestion blob reference", "blob_id", blob.ID, "error", err)
			}
		}
	}()
	if err := r.storeFiles(ctx, source, files, blobs); err != nil {
		return uuid.Nil, err
	}
	// Payload files name these blobs, so the folder metadata listing
	// them must be on disk first: a restart drops unlisted blob files.
	if err := r.blobs.Persist(); err != nil {
		return uuid.Nil, fmt.Errorf("asset: persisting blob metadata: %w", err)
	}

	byPath := make(map[string]*blobstore.Info, len(files))
	for i, file := range files {
		byPath[file.Path] = blobs[i]
	}

	scope := rollback.New(r.logger)
	defer scope.Unwind(context.WithoutCancel(ctx))

	payloadIDs := make(map[string]uuid.UUID, len(catalog.Payloads))
	for _, catalogPayload := range catalog.Payloads {
		registered := payload.Payload{ID: uuid.New(), Files: make([]payload.File, 0, len(catalogPayload.Files))}
		for _, file := range catalogPayload.Files {
			blob := byPath[file.Path]
			registered.Files = append(registered.Files, payload.File{
				Path:           file.Path,
				BlobID:         blob.ID,
				CompressedSize: blob.CompressedSize,
				Size:           blob.Size,
			})
		}
		if err := r.payloads.Add(registered); err != nil {
			return uuid.Nil, fmt.Errorf("asset: registering payload %q: %w", catalogPayload.Name, err)
		}
		scope.Push("remove payload "+registered.ID.String(), func(context.Context) error {
			return r.payloads.Remove(registered.ID)
		})
		payloadIDs[catalogPayload.Name] = registered.ID
	}

	added := Asset{
		ID:          uuid.New(),
		Name:        info.Name,
		Description: info.Description,
		Launchables: make([]Launchable, 0, len(catalog.Launchables)),
		Added:       r.clock.Now().UTC(),
	}
	for _, catalogLaunchable := range catalog.Launchables {
		launchable := Launchable{
			Name:                    catalogLaunchable.Name,
			Type:                    catalogLaunchable.Type,
			Data:                    catalogLaunchable.Data,
			GlobalParameters:        catalogLaunchable.GlobalParameters,
			LaunchComplexParameters: catalogLaunchable.LaunchComplexParameters,
			LaunchPadParameters:     catalogLaunchable.LaunchPadParameters,
			PreLaunchPath:           catalogLaunchable.PreLaunchPath,
			LaunchPath:              catalogLaunchable.LaunchPath,
			LandingTimeSec:          catalogLaunchable.LandingTimeSec,
		}
		for _, name := range catalogLaunchable.Payloads {
			id, ok := payloadIDs[name]
			if !ok {
				return uuid.Nil, &launchcatalog.ManifestError{Problems: []string{
					fmt.Sprintf("launchable %q references payload %q, which the catalog does not declare", catalogLaunchable.Name, name),
				}}
			}
			launchable.Payloads = append(launchable.Payloads, id)
		}
		added.Launchables = append(added.Launchables, launchable)
	}

	unique := make(map[uuid.UUID]int64)
	for _, blob := range blobs {
		unique[blob.ID] = blob.CompressedSize
	}
	for _, size := range unique {
		added.StorageSize += size
	}

	if err := r.index.insert(ctx, &added); err != nil {
		return uuid.Nil, err
	}
	r.assets.Put(added.ID, added)
	scope.Commit()

	r.logger.Info("asset added",
		"asset_id", added.ID,
		"name", added.Name,
		"files", len(files),
		"payloads", len(payloadIDs),
		"storage_size", added.StorageSize,
	)
	return added.ID, nil
}

// storeFiles adds every file to the blob store, concurrency at a time,
// recording each obtained blob in blobs. The first failure cancels the
// others.
func (r *Registry) storeFiles(ctx context.Context, source Source, files []launchcatalog.PayloadFile, blobs []*blobstore.Info) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			info, err := r.storeFile(groupCtx, source, file)
			if err != nil {
				return err
			}
			blobs[i] = info
			return nil
		})
	}
	return group.Wait()
}

func (r *Registry) storeFile(ctx context.Context, source Source, file launchcatalog.PayloadFile) (*blobstore.Info, error) {
	// Known content is referenced without opening the source. A blob
	// deleted since the lookup falls through to a normal add.
	if known, ok := r.blobs.Lookup(file.Checksum); ok {
		err := r.blobs.IncreaseReference(known.ID)
		if err == nil {
			return &known, nil
		}
		if !errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("asset: storing %s: %w", file.Path, err)
		}
	}

	reader, length, err := source.Open(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	id, err := r.blobs.AddBlob(ctx, reader, length, file.Checksum)
	var integrity *blobstore.IntegrityError
	if errors.As(err, &integrity) {
		return nil, &launchcatalog.ManifestError{
			Problems: []string{fmt.Sprintf("content of %s does not match its checksum; was %s generated for this build?", file.Path, launchcatalog.FileName)},
			Err:      err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("asset: storing %s: %w", file.Path, err)
	}

	info, err := r.blobs.Blob(id)
	if err != nil {
		// Unreachable while the reference above is held.
		r.blobs.DecreaseReference(id)
		return nil, fmt.Errorf("asset: storing %s: %w", file.Path, err)
	}
	return &info, nil
}
