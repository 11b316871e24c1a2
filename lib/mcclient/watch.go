// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package mcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/api"
	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/service"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// WatchConfig configures a watch loop.
type WatchConfig struct {
	// MaxBackoff caps the retry delay after failed polls.
	MaxBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// watch runs poll until ctx ends or poll reports a stop error. Other
// errors are retried with backoff. It returns the stop error, or
// ctx.Err() after cancellation.
func (w WatchConfig) watch(ctx context.Context, poll func(ctx context.Context) (stop error, err error)) error {
	if w.Clock == nil {
		w.Clock = clock.Real()
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopped error
	service.RunPollLoop(watchCtx, func(ctx context.Context) error {
		stop, err := poll(ctx)
		if stop == nil && errors.Is(err, ErrBadRequest) {
			// Retrying a request the daemon rejects cannot succeed.
			stop, err = err, nil
		}
		if stop != nil {
			stopped = stop
			cancel()
		}
		return err
	}, service.PollConfig{MaxBackoff: w.MaxBackoff}, w.Clock, w.Logger)

	if stopped != nil {
		return stopped
	}
	return ctx.Err()
}

// WatchObject long-polls one observable object, calling handle with
// each new version's raw value. It runs until ctx is cancelled, then
// returns ctx.Err(). An error from handle stops the watch and is
// returned.
func (c *Client) WatchObject(ctx context.Context, name string, config WatchConfig, handle func(value json.RawMessage, version uint64) error) error {
	var from uint64
	return config.watch(ctx, func(ctx context.Context) (error, error) {
		ready, err := c.PollObjects(ctx, []versioned.Request{{Name: name, FromVersion: from}})
		if err != nil {
			return nil, err
		}
		snapshot, ok := ready[name]
		if !ok {
			return nil, nil
		}
		from = snapshot.Version
		return handle(snapshot.Value, snapshot.Version), nil
	})
}

// WatchStatus calls handle with every new daemon status.
func (c *Client) WatchStatus(ctx context.Context, config WatchConfig, handle func(api.Status) error) error {
	return c.WatchObject(ctx, api.ObjectStatus, config, func(value json.RawMessage, _ uint64) error {
		var status api.Status
		if err := json.Unmarshal(value, &status); err != nil {
			return fmt.Errorf("mcclient: decoding status: %w", err)
		}
		return handle(status)
	})
}

// AssetsView is a client-side mirror of the assets collection.
type AssetsView map[uuid.UUID]asset.Asset

// Apply folds a delta into the view.
func (v AssetsView) Apply(delta api.AssetsDelta) {
	for _, updated := range delta.UpdatedObjects {
		v[updated.ID] = updated
	}
	for _, removed := range delta.RemovedObjects {
		delete(v, removed)
	}
}

// WatchAssets keeps a mirror of the assets collection, calling handle
// with the whole view after every change. The first call carries every
// existing asset.
func (c *Client) WatchAssets(ctx context.Context, config WatchConfig, handle func(AssetsView) error) error {
	view := AssetsView{}
	var from uint64
	return config.watch(ctx, func(ctx context.Context) (error, error) {
		delta, err := c.PollAssets(ctx, from)
		if err != nil || delta == nil {
			return nil, err
		}
		from = delta.NextUpdate
		view.Apply(*delta)
		return handle(view), nil
	})
}
