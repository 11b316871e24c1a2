// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteTree writes files (slash-separated paths relative to root) to
// fs, creating directories as needed.
//
//	fs := afero.NewMemMapFs()
//	testutil.WriteTree(t, fs, "/build", map[string][]byte{
//	    "LaunchCatalog.json": catalog,
//	    "bin/player":         player,
//	})
func WriteTree(t TB, fs afero.Fs, root string, files map[string][]byte) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", name, err)
		}
		if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}
