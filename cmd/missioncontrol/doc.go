// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// missioncontrol is the asset distribution daemon. It stores the
// content of deployable assets in deduplicated, compressed blobs
// spread over the configured storage folders, and serves the asset
// list, blob content and its own state over an HTTP API with
// long-poll change notification.
//
// Usage:
//
//	missioncontrol [--config missioncontrol.yaml] [--verbose]
//
// SIGHUP reloads the configuration file; storage folders added,
// resized or removed there are applied without a restart, moving
// blobs as needed. Blob metadata is written every persist_interval
// and at shutdown.
package main
