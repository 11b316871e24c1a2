// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed] and [RequireBlocked] wrap the
// select-with-timeout pattern so tests exercising long-poll waits and
// blob locks do not each hand-roll it. They are the only place tests
// wait on wall-clock time.
//
// [Logger] returns a debug-level logger writing to the test's output,
// so component logs show up next to the failing test.
//
// [WriteTree] lays out an asset directory (LaunchCatalog.json plus
// payload files) on any afero filesystem.
package testutil
