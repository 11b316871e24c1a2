// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of missioncontrol and missionctl
// is running. Release builds inject the commit and build time:
//
//	go build -ldflags "-X github.com/renderfleet/missioncontrol/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Other builds take both from the VCS stamp in the binary's build
// info, or report "unknown" under go test and go run.
package version
