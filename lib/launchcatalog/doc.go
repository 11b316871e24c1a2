// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package launchcatalog models LaunchCatalog.json, the manifest that
// ships with every asset.
//
// A catalog lists payloads (named groups of files, each identified by
// its content checksum) and launchables (the runnable roles of the
// asset, each naming the payloads it needs and declaring its launch
// parameters). [Parse] accepts JSON with comments and trailing commas,
// the way build tooling tends to emit it, and normalizes parameter
// values to int64, float64, string or bool according to the declared
// parameter type.
//
// [Validate] performs the structural checks that must pass before an
// asset touches storage. Failures are reported as *[ManifestError],
// which lists every problem found rather than the first.
package launchcatalog
