// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore implements the content-addressed, reference-counted
// file blob store that backs every asset.
//
// A blob is one file identified by the checksum of its uncompressed
// content. Adding content whose checksum is already known only bumps
// the existing blob's reference count, so files shared between assets
// are stored once. Blobs are spread over storage folders, each with a
// maximum size; a new blob goes to the qualifying folder with the most
// free space, and the store never lets a folder grow past its maximum.
//
// Two independent counters keep a blob alive:
//
//   - references, taken by payloads (and transiently by asset
//     ingestion) through AddBlob, IncreaseReference and
//     DecreaseReference;
//   - locks, taken by readers through Lock. While a lock is held the
//     blob's file is neither deleted nor moved, so its path stays
//     readable.
//
// A blob whose references drop to zero while locks are outstanding is
// a zombie: it still occupies space (reported separately in
// FolderStatus) and is deleted when the last lock is released.
//
// The folder set can change while the store runs. Removing a folder,
// or shrinking its maximum below its usage, relocates blobs to the
// remaining folders; if they lack the room the change fails and no
// blob is lost.
//
// Each folder persists the list of blobs it holds in metadata.cbor.
// Reference counts are not persisted: they are rebuilt by the payload
// registry on startup, after which PurgeUnreferenced deletes whatever
// no payload claimed.
package blobstore
