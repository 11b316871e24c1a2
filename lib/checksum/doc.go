// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum defines the content identity of file blobs: an
// unkeyed BLAKE3-256 digest of the uncompressed file bytes.
//
// The digest is unkeyed so build pipelines producing LaunchCatalog.json
// can compute it with stock tools (b3sum) and the store can verify it
// after streaming the content through its compressor. The canonical
// textual form is 64 lowercase hex characters.
package checksum
