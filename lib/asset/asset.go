// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
)

var (
	// ErrNotFound is returned for an unknown asset id.
	ErrNotFound = errors.New("asset: not found")

	// ErrAssetInUse is returned when removing an asset something still
	// uses.
	ErrAssetInUse = errors.New("asset: in use")
)

// Info is what the user says about an asset when adding it.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Asset is one deployable build.
type Asset struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Launchables []Launchable `json:"launchables"`

	// StorageSize is the compressed size of the distinct blobs the
	// asset's payloads reference.
	StorageSize int64 `json:"storageSize"`

	Added time.Time `json:"added"`
}

// Launchable is a catalog launchable whose payloads have been
// registered.
type Launchable struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Payloads []uuid.UUID     `json:"payloads"`

	GlobalParameters        []launchcatalog.Parameter `json:"globalParameters,omitempty"`
	LaunchComplexParameters []launchcatalog.Parameter `json:"launchComplexParameters,omitempty"`
	LaunchPadParameters     []launchcatalog.Parameter `json:"launchPadParameters,omitempty"`

	PreLaunchPath  string  `json:"preLaunchPath,omitempty"`
	LaunchPath     string  `json:"launchPath"`
	LandingTimeSec float64 `json:"landingTimeSec,omitempty"`
}

// PayloadIDs returns the distinct payloads of every launchable, in
// first-seen order.
func (a *Asset) PayloadIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, launchable := range a.Launchables {
		for _, id := range launchable.Payloads {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Clone returns a copy sharing no slice with a.
func (a Asset) Clone() Asset {
	a.Launchables = slices.Clone(a.Launchables)
	for i := range a.Launchables {
		launchable := &a.Launchables[i]
		launchable.Data = slices.Clone(launchable.Data)
		launchable.Payloads = slices.Clone(launchable.Payloads)
		launchable.GlobalParameters = slices.Clone(launchable.GlobalParameters)
		launchable.LaunchComplexParameters = slices.Clone(launchable.LaunchComplexParameters)
		launchable.LaunchPadParameters = slices.Clone(launchable.LaunchPadParameters)
	}
	return a
}

// InUseChecker reports whether something depends on an asset.
type InUseChecker interface {
	InUse(assetID uuid.UUID) bool
}

// DeletionGuard serializes asset removal against operations that
// start depending on an asset. Both sides hold it around their check
// and their change, and take it before any of their own locks.
type DeletionGuard struct {
	sync.Mutex
}
