// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command tree of missionctl: subcommand dispatch
// with typo suggestions, per-command pflag sets, generated help and
// the shared output helpers commands print through.
package cli
