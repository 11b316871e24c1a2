// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package launchconfig holds the launch configuration: which asset the
// next launch uses, and the parameter values overriding the defaults
// its catalog declares.
//
// The configuration is a versioned object so long-poll clients see it
// change, and it is persisted as CBOR on every change. Selecting an
// asset happens under the asset registry's deletion guard, and the
// manager reports the selected asset as in use, so an asset cannot be
// removed while it is selected nor selected while being removed.
package launchconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/codec"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/versioned"
)

// ErrInvalidParameter is returned for a parameter override the
// selected asset does not declare, or whose value it does not accept.
var ErrInvalidParameter = errors.New("launchconfig: invalid parameter value")

// Configuration is the launch configuration.
type Configuration struct {
	// AssetID is the selected asset, uuid.Nil when none is.
	AssetID uuid.UUID `json:"assetId"`

	// Parameters maps parameter identifiers to values overriding their
	// defaults.
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (c Configuration) clone() Configuration {
	c.Parameters = maps.Clone(c.Parameters)
	return c
}

// Assets is the part of the asset registry the manager needs.
type Assets interface {
	Get(id uuid.UUID) (asset.Asset, error)
	Guard() *asset.DeletionGuard
	AddInUseChecker(checker asset.InUseChecker)
}

// Config configures a Manager.
type Config struct {
	// Path is the file the configuration is persisted to.
	Path string

	Assets Assets
	Logger *slog.Logger
}

// Manager owns the launch configuration. Safe for concurrent use.
type Manager struct {
	path   string
	assets Assets
	logger *slog.Logger
	object *versioned.Object[Configuration]
}

// Open loads the persisted configuration and registers the manager as
// an in-use checker with assets. A configuration selecting an asset
// that no longer exists is cleared.
func Open(config Config) (*Manager, error) {
	if config.Assets == nil || config.Logger == nil {
		panic("launchconfig.Open: Assets and Logger are required")
	}

	var loaded Configuration
	err := codec.ReadFile(config.Path, &loaded)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("launchconfig: loading %s: %w", config.Path, err)
	}
	if loaded.AssetID != uuid.Nil {
		if _, err := config.Assets.Get(loaded.AssetID); err != nil {
			config.Logger.Warn("launch configuration references a missing asset, clearing it",
				"asset_id", loaded.AssetID, "error", err)
			loaded = Configuration{}
		}
	}

	manager := &Manager{
		path:   config.Path,
		assets: config.Assets,
		logger: config.Logger,
		object: versioned.NewObject(loaded, Configuration.clone),
	}
	config.Assets.AddInUseChecker(manager)
	return manager, nil
}

// Get returns the current configuration and its version.
func (m *Manager) Get() (Configuration, uint64) {
	return m.object.Get()
}

// Object returns the versioned configuration, for long-poll clients.
func (m *Manager) Object() *versioned.Object[Configuration] {
	return m.object
}

// InUse reports whether id is the selected asset.
func (m *Manager) InUse(id uuid.UUID) bool {
	current, _ := m.object.Get()
	return current.AssetID == id
}

// Set replaces the configuration. The selected asset must exist and
// every parameter override must name a parameter of one of its
// launchables with a value that parameter accepts. Values are stored
// converted to the parameter's type. The configuration is persisted
// before it becomes visible.
func (m *Manager) Set(ctx context.Context, configuration Configuration) error {
	guard := m.assets.Guard()
	guard.Lock()
	defer guard.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := Configuration{AssetID: configuration.AssetID}
	if configuration.AssetID != uuid.Nil {
		selected, err := m.assets.Get(configuration.AssetID)
		if err != nil {
			return err
		}
		normalized.Parameters, err = checkParameters(&selected, configuration.Parameters)
		if err != nil {
			return err
		}
	} else if len(configuration.Parameters) > 0 {
		return fmt.Errorf("%w: parameters given without an asset", ErrInvalidParameter)
	}

	if err := codec.WriteFile(m.path, normalized); err != nil {
		return fmt.Errorf("launchconfig: persisting: %w", err)
	}
	version := m.object.Set(normalized)
	m.logger.Info("launch configuration changed",
		"asset_id", normalized.AssetID,
		"parameters", len(normalized.Parameters),
		"version", version,
	)
	return nil
}

func checkParameters(selected *asset.Asset, values map[string]any) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	declared := make(map[string][]launchcatalog.Parameter)
	for _, launchable := range selected.Launchables {
		for _, lists := range [][]launchcatalog.Parameter{
			launchable.GlobalParameters,
			launchable.LaunchComplexParameters,
			launchable.LaunchPadParameters,
		} {
			for _, parameter := range lists {
				declared[parameter.ID] = append(declared[parameter.ID], parameter)
			}
		}
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	normalized := make(map[string]any, len(values))
	for _, id := range ids {
		parameters, ok := declared[id]
		if !ok {
			return nil, fmt.Errorf("%w: asset %s declares no parameter %q", ErrInvalidParameter, selected.ID, id)
		}
		for _, parameter := range parameters {
			if err := parameter.Accepts(values[id]); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, id, err)
			}
		}
		converted, err := parameters[0].Type.Convert(values[id])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, id, err)
		}
		normalized[id] = converted
	}
	return normalized, nil
}
