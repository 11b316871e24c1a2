// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package launchconfig

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

type fakeAssets struct {
	assets   map[uuid.UUID]asset.Asset
	guard    asset.DeletionGuard
	checkers []asset.InUseChecker
}

func (f *fakeAssets) Get(id uuid.UUID) (asset.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return asset.Asset{}, asset.ErrNotFound
	}
	return a, nil
}

func (f *fakeAssets) Guard() *asset.DeletionGuard { return &f.guard }

func (f *fakeAssets) AddInUseChecker(checker asset.InUseChecker) {
	f.checkers = append(f.checkers, checker)
}

func newAssets() (*fakeAssets, uuid.UUID) {
	minimum := 1.0
	id := uuid.New()
	return &fakeAssets{assets: map[uuid.UUID]asset.Asset{
		id: {
			ID:   id,
			Name: "city",
			Launchables: []asset.Launchable{{
				Name: "server",
				LaunchComplexParameters: []launchcatalog.Parameter{{
					ID:           "players",
					Type:         launchcatalog.Integer,
					DefaultValue: int64(8),
					Constraint:   &launchcatalog.Constraint{Type: launchcatalog.Range, Min: &minimum},
				}},
				LaunchPadParameters: []launchcatalog.Parameter{{
					ID:           "vsync",
					Type:         launchcatalog.Boolean,
					DefaultValue: true,
				}},
			}},
		},
	}}, id
}

func openManager(t *testing.T, assets Assets, path string) *Manager {
	t.Helper()
	manager, err := Open(Config{Path: path, Assets: assets, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return manager
}

func TestSetPersistsAndReloads(t *testing.T) {
	assets, id := newAssets()
	path := filepath.Join(t.TempDir(), "launchConfiguration.cbor")
	manager := openManager(t, assets, path)

	if _, version := manager.Get(); version != 1 {
		t.Fatalf("initial version = %d, want 1", version)
	}
	err := manager.Set(context.Background(), Configuration{
		AssetID:    id,
		Parameters: map[string]any{"players": float64(16), "vsync": false},
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	current, version := manager.Get()
	if version != 2 {
		t.Errorf("version = %d after Set, want 2", version)
	}
	if players, ok := current.Parameters["players"].(int64); !ok || players != 16 {
		t.Errorf("players = %#v, want int64(16)", current.Parameters["players"])
	}

	reloaded := openManager(t, assets, path)
	restored, _ := reloaded.Get()
	if restored.AssetID != id {
		t.Errorf("reloaded AssetID = %s, want %s", restored.AssetID, id)
	}
	if restored.Parameters["players"] != int64(16) || restored.Parameters["vsync"] != false {
		t.Errorf("reloaded Parameters = %#v", restored.Parameters)
	}
}

func TestSetRejects(t *testing.T) {
	assets, id := newAssets()
	manager := openManager(t, assets, filepath.Join(t.TempDir(), "launchConfiguration.cbor"))

	tests := []struct {
		name          string
		configuration Configuration
		want          error
	}{
		{"unknown asset", Configuration{AssetID: uuid.New()}, asset.ErrNotFound},
		{"unknown parameter", Configuration{AssetID: id, Parameters: map[string]any{"fov": 90}}, ErrInvalidParameter},
		{"constraint violated", Configuration{AssetID: id, Parameters: map[string]any{"players": 0}}, ErrInvalidParameter},
		{"wrong type", Configuration{AssetID: id, Parameters: map[string]any{"vsync": "yes"}}, ErrInvalidParameter},
		{"parameters without asset", Configuration{Parameters: map[string]any{"players": 4}}, ErrInvalidParameter},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := manager.Set(context.Background(), test.configuration)
			if !errors.Is(err, test.want) {
				t.Fatalf("Set = %v, want %v", err, test.want)
			}
			if _, version := manager.Get(); version != 1 {
				t.Errorf("version = %d after rejected Set, want 1", version)
			}
		})
	}
}

func TestInUse(t *testing.T) {
	assets, id := newAssets()
	manager := openManager(t, assets, filepath.Join(t.TempDir(), "launchConfiguration.cbor"))
	if len(assets.checkers) != 1 {
		t.Fatalf("registered %d in-use checkers, want 1", len(assets.checkers))
	}
	if manager.InUse(id) {
		t.Error("asset in use before being selected")
	}
	if err := manager.Set(context.Background(), Configuration{AssetID: id}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !assets.checkers[0].InUse(id) {
		t.Error("selected asset not reported in use")
	}
	if err := manager.Set(context.Background(), Configuration{}); err != nil {
		t.Fatalf("Set(empty): %v", err)
	}
	if manager.InUse(id) {
		t.Error("asset still in use after clearing the selection")
	}
}

func TestOpenClearsMissingAsset(t *testing.T) {
	assets, id := newAssets()
	path := filepath.Join(t.TempDir(), "launchConfiguration.cbor")
	manager := openManager(t, assets, path)
	if err := manager.Set(context.Background(), Configuration{AssetID: id}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	delete(assets.assets, id)
	reloaded := openManager(t, assets, path)
	if current, _ := reloaded.Get(); current.AssetID != uuid.Nil {
		t.Errorf("AssetID = %s after its asset vanished, want nil", current.AssetID)
	}
}
