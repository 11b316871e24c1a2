// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/blobstore"
	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/config"
	"github.com/renderfleet/missioncontrol/lib/launchconfig"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/rollback"
	"github.com/renderfleet/missioncontrol/lib/service"
	"github.com/renderfleet/missioncontrol/lib/version"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// Files and directories under the state directory.
const (
	assetDatabaseName       = "assets.db"
	payloadDirectoryName    = "payloads"
	uploadDirectoryName     = "uploads"
	launchConfigurationName = "launchConfiguration.cbor"
)

// daemon is the running mission control service: the stores, the
// observable state long-poll clients wait on, and the configuration
// service that reconfigures them.
type daemon struct {
	clock  clock.Clock
	logger *slog.Logger

	config   *config.Service
	blobs    *blobstore.Store
	payloads *payload.Registry
	assets   *asset.Registry
	launch   *launchconfig.Manager

	status      *versioned.Object[api.Status]
	objects     *versioned.Catalog
	collections *versioned.Catalog

	persist *service.Flight

	// sources is the filesystem local asset folders are read from.
	sources   afero.Fs
	uploadDir string
}

// openDaemon opens every store in dependency order: blobs, then the
// payloads referencing them, then the assets referencing payloads,
// then the launch configuration referencing an asset. Blobs no payload
// claimed once all are loaded are purged.
func openDaemon(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{
		clock:     clk,
		logger:    logger,
		sources:   afero.NewOsFs(),
		uploadDir: filepath.Join(cfg.StateDir, uploadDirectoryName),
		status: versioned.NewObject(api.Status{
			Started: clk.Now().UTC(),
			Version: version.Info(),
		}, cloneStatus),
	}

	cleanup := rollback.New(logger)
	defer func() {
		if err != nil {
			cleanup.Unwind(context.WithoutCancel(ctx))
		}
	}()

	if err := os.MkdirAll(d.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	d.blobs, err = blobstore.Open(blobstore.Config{
		Folders:     folderConfigs(cfg),
		Compression: cfg.Compression,
		OnChange:    d.refreshStatus,
		Logger:      logger.With("component", "blobstore"),
	})
	if err != nil {
		return nil, err
	}

	d.payloads, err = payload.Open(payload.Config{
		Directory: filepath.Join(cfg.StateDir, payloadDirectoryName),
		Blobs:     d.blobs,
		Logger:    logger.With("component", "payload"),
	})
	if err != nil {
		return nil, err
	}

	d.assets, err = asset.Open(ctx, asset.Config{
		Blobs:        d.blobs,
		Payloads:     d.payloads,
		DatabasePath: filepath.Join(cfg.StateDir, assetDatabaseName),
		Concurrency:  cfg.IngestConcurrency,
		Clock:        clk,
		Logger:       logger.With("component", "asset"),
	})
	if err != nil {
		return nil, err
	}
	cleanup.Push("close asset index", func(context.Context) error { return d.assets.Close() })

	if purged := d.blobs.PurgeUnreferenced(); purged > 0 {
		logger.Info("purged unreferenced blobs", "count", purged)
	}
	d.refreshStatus()

	d.launch, err = launchconfig.Open(launchconfig.Config{
		Path:   filepath.Join(cfg.StateDir, launchConfigurationName),
		Assets: d.assets,
		Logger: logger.With("component", "launchconfig"),
	})
	if err != nil {
		return nil, err
	}

	d.config = config.NewService(cfg, logger.With("component", "config"))
	d.config.AddValidator("restart-only settings", restartOnly(cfg))
	d.config.AddReactor("storage folders", func(ctx context.Context, previous, next *config.Config) error {
		return d.blobs.Reconfigure(ctx, folderConfigs(next))
	})

	d.objects = versioned.NewCatalog(clk, cfg.LongPollTimeout)
	d.collections = versioned.NewCatalog(clk, cfg.LongPollTimeout)
	registrations := []struct {
		catalog  *versioned.Catalog
		name     string
		waitable versioned.Waitable
	}{
		{d.objects, api.ObjectStatus, d.status},
		{d.objects, api.ObjectLaunchConfiguration, d.launch.Object()},
		{d.objects, api.ObjectConfig, d.config.Object()},
		{d.collections, api.CollectionAssets, d.assets.Collection()},
	}
	for _, registration := range registrations {
		if err := registration.catalog.Register(registration.name, registration.waitable); err != nil {
			return nil, err
		}
	}

	d.persist = service.NewFlight("persist", d.persistAll, logger)

	cleanup.Commit()
	return d, nil
}

// Close persists blob metadata and closes the asset index.
func (d *daemon) Close() error {
	return errors.Join(
		d.persist.Do(context.Background()),
		d.assets.Close(),
	)
}

// persistAll writes the state not already written as it changes. Only
// blob metadata is batched; payloads, assets and the launch
// configuration are persisted by the operations that change them.
func (d *daemon) persistAll(context.Context) error {
	return d.blobs.Persist()
}

// reload reads the configuration file again and applies it.
func (d *daemon) reload(ctx context.Context, path string) error {
	next, err := loadConfig(path)
	if err != nil {
		return err
	}
	return d.config.Apply(ctx, *next)
}

// refreshStatus republishes the storage status. The store calls it
// after every change, outside its own locks.
func (d *daemon) refreshStatus() {
	if d.blobs == nil {
		return
	}
	d.status.Update(func(current *api.Status) bool {
		folders, blobs := d.blobs.FolderStatus(), d.blobs.Len()
		if blobs == current.Blobs && slices.Equal(folders, current.StorageFolders) {
			return false
		}
		current.StorageFolders, current.Blobs = folders, blobs
		return true
	})
}

func cloneStatus(status api.Status) api.Status {
	status.StorageFolders = slices.Clone(status.StorageFolders)
	return status
}

func folderConfigs(cfg *config.Config) []blobstore.FolderConfig {
	folders := make([]blobstore.FolderConfig, 0, len(cfg.StorageFolders))
	for _, folder := range cfg.StorageFolders {
		folders = append(folders, blobstore.FolderConfig{Path: folder.Path, MaximumSize: int64(folder.MaximumSize)})
	}
	return folders
}

// restartOnly rejects changes to settings the daemon only reads at
// startup. Storage folders are the one thing a running daemon changes.
func restartOnly(initial *config.Config) config.Validator {
	return func(next *config.Config) error {
		var changed []string
		if next.Listen != initial.Listen {
			changed = append(changed, "listen")
		}
		if next.StateDir != initial.StateDir {
			changed = append(changed, "state_dir")
		}
		if next.Compression != initial.Compression {
			changed = append(changed, "compression")
		}
		if next.IngestConcurrency != initial.IngestConcurrency {
			changed = append(changed, "ingest_concurrency")
		}
		if next.LongPollTimeout != initial.LongPollTimeout {
			changed = append(changed, "long_poll_timeout")
		}
		if next.PersistInterval != initial.PersistInterval {
			changed = append(changed, "persist_interval")
		}
		if len(changed) > 0 {
			return fmt.Errorf("%v only change on restart", changed)
		}
		return nil
	}
}
