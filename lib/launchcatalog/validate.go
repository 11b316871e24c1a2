// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package launchcatalog

import (
	"fmt"
	"path"
	"strings"
)

// ManifestError reports structural problems in a catalog. Err, when
// set, is the underlying cause (a decoding error, or an integrity
// error for a file whose content does not match its checksum).
type ManifestError struct {
	Problems []string
	Err      error
}

func (e *ManifestError) Error() string {
	return "launch catalog: " + strings.Join(e.Problems, "; ")
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Validate checks everything about a catalog that can be checked
// without its files:
//
//   - payload names are non-empty and unique, and file paths are clean
//     relative paths, with one checksum per path across payloads
//   - launchable names are non-empty and unique
//   - the capcom launchable declares no parameter
//   - every parameter has an identifier unique within its launchable
//     (across global, launch complex and launch pad parameters), a
//     known type, a well-formed constraint, and a default value of its
//     type that satisfies the constraint
//
// Launchables naming payloads absent from the catalog are not
// reported here; the asset registry detects them while assembling the
// asset.
func Validate(catalog *Catalog) error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	payloadNames := make(map[string]bool, len(catalog.Payloads))
	checksums := make(map[string]string)
	for _, payload := range catalog.Payloads {
		switch {
		case payload.Name == "":
			report("payload with an empty name")
		case payloadNames[payload.Name]:
			report("payload %q declared twice", payload.Name)
		}
		payloadNames[payload.Name] = true

		for _, file := range payload.Files {
			if !ValidPath(file.Path) {
				report("payload %q: invalid file path %q", payload.Name, file.Path)
				continue
			}
			sum := file.Checksum.String()
			if previous, seen := checksums[file.Path]; seen && previous != sum {
				report("file %q listed with two different checksums", file.Path)
			}
			checksums[file.Path] = sum
		}
	}

	launchableNames := make(map[string]bool, len(catalog.Launchables))
	for i := range catalog.Launchables {
		launchable := &catalog.Launchables[i]
		switch {
		case launchable.Name == "":
			report("launchable with an empty name")
		case launchableNames[launchable.Name]:
			report("launchable %q declared twice", launchable.Name)
		}
		launchableNames[launchable.Name] = true

		parameters := launchable.Parameters()
		if launchable.Type == CapcomLaunchableType && len(parameters) > 0 {
			report("launchable %q: %s launchables cannot have parameters", launchable.Name, CapcomLaunchableType)
			continue
		}

		identifiers := make(map[string]bool, len(parameters))
		for _, parameter := range parameters {
			if parameter.ID == "" {
				report("launchable %q: parameter %q has no identifier", launchable.Name, parameter.Name)
				continue
			}
			if identifiers[parameter.ID] {
				report("launchable %q: parameter identifier %q used twice", launchable.Name, parameter.ID)
			}
			identifiers[parameter.ID] = true

			if parameter.Constraint != nil {
				if err := parameter.Constraint.check(); err != nil {
					report("launchable %q: parameter %q: %v", launchable.Name, parameter.ID, err)
					continue
				}
			}
			if parameter.DefaultValue == nil {
				report("launchable %q: parameter %q has no default value", launchable.Name, parameter.ID)
				continue
			}
			if err := parameter.Accepts(parameter.DefaultValue); err != nil {
				report("launchable %q: parameter %q: default value: %v", launchable.Name, parameter.ID, err)
			}
		}
	}

	if len(problems) > 0 {
		return &ManifestError{Problems: problems}
	}
	return nil
}

// ValidPath reports whether name is acceptable as a payload file
// path: relative, slash-separated, clean and staying below the asset
// root.
func ValidPath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return false
	}
	return path.Clean(name) == name && name != "." && name != ".." && !strings.HasPrefix(name, "../")
}
