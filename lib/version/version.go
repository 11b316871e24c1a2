// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags -X at release builds.
var (
	GitCommit = ""
	BuildTime = ""
	Version   = "0.1.0-dev"
)

// build fills in GitCommit and BuildTime from the VCS stamp the go
// command records when they were not injected.
var build = sync.OnceValues(func() (commit, built string) {
	commit, built = GitCommit, BuildTime
	dirty := false
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch {
			case setting.Key == "vcs.revision" && commit == "":
				commit = setting.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			case setting.Key == "vcs.time" && built == "":
				built = setting.Value
			case setting.Key == "vcs.modified":
				dirty = setting.Value == "true" && GitCommit == ""
			}
		}
	}
	switch {
	case commit == "":
		commit = "unknown"
	case dirty:
		commit += "-dirty"
	}
	if built == "" {
		built = "unknown"
	}
	return commit, built
})

// Info is the one-line version: "0.3.0 (1a2b3c4d5e6f, 2026-05-01T10:00:00Z)".
func Info() string {
	commit, built := build()
	return fmt.Sprintf("%s (%s, %s)", Version, commit, built)
}

// UserAgent identifies binary in HTTP requests.
func UserAgent(binary string) string {
	return binary + "/" + Version
}

// Print writes binary's --version output to stdout.
func Print(binary string) {
	Fprint(os.Stdout, binary)
}

// Fprint writes binary's --version output to w: the Info line and the
// toolchain and platform it was built for.
func Fprint(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n  go: %s %s/%s\n", binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
