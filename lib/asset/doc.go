// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package asset is the asset registry: the deployable builds Mission
// Control knows about, and the ingestion pipeline that turns a build
// directory into one.
//
// Ingestion ([Registry.AddAsset]) is transactional across three
// reference-counting layers. File contents go to the blob store
// concurrently, each holding an exploratory blob reference for the
// duration of the call; content the store already holds is referenced
// without being read. The blob metadata is then persisted, and only
// then are payloads registered, each taking its own blob references. Finally the asset row is written to the index
// database and the asset becomes visible. A failure at any point
// removes the payloads registered so far; the exploratory references
// are released whatever the outcome, so the blob store ends up with
// exactly the references the surviving payloads hold.
//
// Removal ([Registry.RemoveAsset]) hides the asset first and releases
// its payloads afterwards. It is serialized against the launch
// configuration through a [DeletionGuard] and refused while any
// registered [InUseChecker] reports the asset in use.
//
// Assets are read from a [Source]: [FolderSource] reads a build
// directory through an afero filesystem, [MultipartSource] reads one
// uploaded over HTTP.
package asset
