// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count written in configuration files the way humans
// write it: "50 GiB", "500MB", or a plain number of bytes.
type Size int64

// ParseSize parses a human-readable byte count.
func ParseSize(text string) (Size, error) {
	bytes, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", text, err)
	}
	if bytes > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", text)
	}
	return Size(bytes), nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	parsed, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalJSON accepts a number of bytes or a human-readable string.
func (s *Size) UnmarshalJSON(data []byte) error {
	var number int64
	if err := json.Unmarshal(data, &number); err == nil {
		*s = Size(number)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("size must be a number or a string: %s", data)
	}
	parsed, err := ParseSize(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
