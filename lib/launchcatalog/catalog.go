// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package launchcatalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/renderfleet/missioncontrol/lib/checksum"
)

// FileName is the name of the catalog at the root of an asset.
const FileName = "LaunchCatalog.json"

// CapcomLaunchableType is the type of the launchable that supervises
// a launch. It never takes parameters.
const CapcomLaunchableType = "capcom"

// Catalog is the content of LaunchCatalog.json.
type Catalog struct {
	Payloads    []Payload    `json:"payloads"`
	Launchables []Launchable `json:"launchables"`
}

// Payload is a named group of files.
type Payload struct {
	Name  string        `json:"name"`
	Files []PayloadFile `json:"files"`
}

// PayloadFile is one file of a payload. Path is relative to the asset
// root, with forward slashes.
type PayloadFile struct {
	Path     string       `json:"path"`
	Checksum checksum.Sum `json:"checksum"`
}

// Launchable is one runnable role of an asset.
type Launchable struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// Data is opaque to Mission Control and handed to launchers as is.
	Data json.RawMessage `json:"data,omitempty"`

	// Payloads names the catalog payloads the launchable needs.
	Payloads []string `json:"payloads"`

	GlobalParameters        []Parameter `json:"globalParameters,omitempty"`
	LaunchComplexParameters []Parameter `json:"launchComplexParameters,omitempty"`
	LaunchPadParameters     []Parameter `json:"launchPadParameters,omitempty"`

	PreLaunchPath  string  `json:"preLaunchPath,omitempty"`
	LaunchPath     string  `json:"launchPath"`
	LandingTimeSec float64 `json:"landingTimeSec,omitempty"`
}

// Parameters returns every parameter of the launchable: global, then
// launch complex, then launch pad.
func (l *Launchable) Parameters() []Parameter {
	all := make([]Parameter, 0, len(l.GlobalParameters)+len(l.LaunchComplexParameters)+len(l.LaunchPadParameters))
	all = append(all, l.GlobalParameters...)
	all = append(all, l.LaunchComplexParameters...)
	return append(all, l.LaunchPadParameters...)
}

// Parse decodes a catalog. Default values are converted to their
// parameter's type; a value that does not convert is a *ManifestError.
// Parse does not run [Validate].
func Parse(data []byte) (*Catalog, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	var catalog Catalog
	if err := decoder.Decode(&catalog); err != nil {
		return nil, &ManifestError{Problems: []string{fmt.Sprintf("decoding %s: %v", FileName, err)}, Err: err}
	}

	var problems []string
	for i := range catalog.Launchables {
		launchable := &catalog.Launchables[i]
		for _, list := range [][]Parameter{
			launchable.GlobalParameters,
			launchable.LaunchComplexParameters,
			launchable.LaunchPadParameters,
		} {
			for j := range list {
				if list[j].Type == "" || list[j].DefaultValue == nil {
					continue
				}
				converted, err := list[j].Type.Convert(list[j].DefaultValue)
				if err != nil {
					problems = append(problems, fmt.Sprintf("launchable %q: parameter %q: default value: %v", launchable.Name, list[j].ID, err))
					continue
				}
				list[j].DefaultValue = converted
			}
		}
	}
	if len(problems) > 0 {
		return nil, &ManifestError{Problems: problems}
	}
	return &catalog, nil
}
