// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the mission
// control daemon, and the service that applies configuration changes
// to running components.
//
// Configuration is loaded from a single file specified by either the
// MISSIONCONTROL_CONFIG environment variable (via [Load]) or a
// --config flag (via [LoadFile]). There are no fallbacks, no
// ~/.config discovery, and no automatic file search.
//
// Two environment variables override values from the file:
// MISSIONCONTROL_LISTEN and MISSIONCONTROL_STATE_DIR. Variable
// expansion is performed on path fields after loading: ${HOME},
// ${STATE_DIR}, and ${VAR:-default} patterns are expanded.
//
// A running daemon changes its configuration only through
// [Service.Apply], which validates the candidate, runs every
// registered reactor in registration order, and publishes the result
// as a versioned object.
//
// Key exports:
//
//   - [Config] -- the daemon configuration
//   - [Default] -- a Config with every optional field filled in
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Service] -- validators, reactors and the current configuration
package config
