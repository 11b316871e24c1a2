// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package api holds the types and names shared by the mission control
// daemon's HTTP API and its clients.
//
// Every endpoint lives under [Prefix]. Failures carry a JSON body
// {"error": "..."} with a status chosen by error kind: a malformed
// request or asset description is 400, an unknown id 404, an asset in
// use 409, content failing its checksum 422, storage full 507.
//
// # Long-poll
//
// GET /api/v1/objectsUpdate and /api/v1/incrementalCollectionsUpdate
// take query parameters name0, fromVersion0, name1, fromVersion1, ...
// and answer as soon as any named object has a version above its
// fromVersion, or a named collection has changed since it. The
// response maps each ready name to its state ([ObjectSnapshot] or
// [AssetsDelta]). When the server's timeout passes first, or no name
// is given, the answer is 204 No Content and the client asks again
// with the same versions.
package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/asset"
	"github.com/renderfleet/missioncontrol/lib/blobstore"
)

// Prefix is the path prefix of every endpoint.
const Prefix = "/api/v1"

// Names of the observable objects.
const (
	ObjectStatus              = "status"
	ObjectLaunchConfiguration = "launchConfiguration"
	ObjectConfig              = "config"
)

// Names of the observable collections.
const (
	CollectionAssets = "assets"
)

// AddAssetRequest is the body of POST /api/v1/assets. URL names a local
// folder holding a LaunchCatalog.json and the files it lists.
type AddAssetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
}

// AddAssetResponse answers both ways of adding an asset.
type AddAssetResponse struct {
	ID uuid.UUID `json:"id"`
}

// Status is the daemon's storage status.
type Status struct {
	StorageFolders []blobstore.FolderStatus `json:"storageFolders"`
	Blobs          int                      `json:"blobs"`

	// Started is when the daemon process started.
	Started time.Time `json:"started"`
	Version string    `json:"version"`
}

// ObjectSnapshot is a long-poll result for an object, with the value
// left undecoded so the caller can pick its type from the name.
type ObjectSnapshot struct {
	Value   json.RawMessage `json:"value"`
	Version uint64          `json:"version"`
}

// AssetsDelta is a long-poll result for the assets collection.
type AssetsDelta struct {
	UpdatedObjects []asset.Asset `json:"updatedObjects"`
	RemovedObjects []uuid.UUID   `json:"removedObjects"`
	NextUpdate     uint64        `json:"nextUpdate"`
}
