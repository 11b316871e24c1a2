// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Missionctl is the command-line client of the missioncontrol daemon.
//
// It adds, uploads, lists and removes assets, shows storage status
// (once or continuously), fetches blobs and payload manifests, and
// reads and sets the launch configuration:
//
//	missionctl assets upload ./build --name nightly
//	missionctl launch set 6f1c... --param players=8
//	missionctl watch
//
// The daemon address comes from --daemon or MISSIONCTL_DAEMON and
// defaults to http://127.0.0.1:8000.
package main
