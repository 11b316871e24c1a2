// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/renderfleet/missioncontrol/lib/compress"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the daemon configuration.
type Config struct {
	// Listen is the TCP address of the HTTP API.
	// Default: 127.0.0.1:8000
	Listen string `yaml:"listen" json:"listen"`

	// StateDir holds the asset database, payload files and the launch
	// configuration.
	// Default: /var/lib/missioncontrol
	StateDir string `yaml:"state_dir" json:"stateDir"`

	// Compression is the codec new blobs are written with.
	// Default: zstd
	Compression compress.Tag `yaml:"compression" json:"compression"`

	// IngestConcurrency bounds the files stored in parallel by one
	// asset ingestion.
	// Default: 8
	IngestConcurrency int `yaml:"ingest_concurrency" json:"ingestConcurrency"`

	// LongPollTimeout bounds every long-poll request.
	// Default: 3m
	LongPollTimeout time.Duration `yaml:"long_poll_timeout" json:"longPollTimeout"`

	// PersistInterval is how often blob metadata is written to disk.
	// Default: 1m
	PersistInterval time.Duration `yaml:"persist_interval" json:"persistInterval"`

	// StorageFolders are the directories blobs are stored in. At
	// least one is required.
	StorageFolders []StorageFolder `yaml:"storage_folders" json:"storageFolders"`
}

// StorageFolder configures one blob storage directory.
type StorageFolder struct {
	Path        string `yaml:"path" json:"path"`
	MaximumSize Size   `yaml:"maximum_size" json:"maximumSize"`
}

// Default returns the default configuration. It has no storage
// folder, so it does not validate on its own.
func Default() *Config {
	return &Config{
		Listen:            "127.0.0.1:8000",
		StateDir:          "/var/lib/missioncontrol",
		Compression:       compress.Zstd,
		IngestConcurrency: 8,
		LongPollTimeout:   3 * time.Minute,
		PersistInterval:   time.Minute,
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.StorageFolders = slices.Clone(c.StorageFolders)
	return c
}

// Load loads configuration from the file named by the
// MISSIONCONTROL_CONFIG environment variable.
func Load() (*Config, error) {
	configPath := os.Getenv("MISSIONCONTROL_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MISSIONCONTROL_CONFIG environment variable not set; " +
			"set it to the path of your missioncontrol.yaml, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, then applies
// the environment overrides and expands variables. The result is not
// validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over the defaults. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	if listen := os.Getenv("MISSIONCONTROL_LISTEN"); listen != "" {
		c.Listen = listen
	}
	if stateDir := os.Getenv("MISSIONCONTROL_STATE_DIR"); stateDir != "" {
		c.StateDir = stateDir
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.StateDir = expandVars(c.StateDir, vars)
	vars["STATE_DIR"] = c.StateDir

	for i := range c.StorageFolders {
		c.StorageFolders[i].Path = expandVars(c.StorageFolders[i].Path, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking in
// vars first and then the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported; the returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if !filepath.IsAbs(c.StateDir) {
		errs = append(errs, fmt.Errorf("state_dir must be an absolute path, got %q", c.StateDir))
	}
	if _, err := compress.ParseTag(c.Compression.String()); err != nil {
		errs = append(errs, fmt.Errorf("compression: %w", err))
	}
	if c.IngestConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("ingest_concurrency must be positive"))
	}
	if c.LongPollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("long_poll_timeout must be positive"))
	}
	if c.PersistInterval <= 0 {
		errs = append(errs, fmt.Errorf("persist_interval must be positive"))
	}

	if len(c.StorageFolders) == 0 {
		errs = append(errs, fmt.Errorf("at least one storage folder is required"))
	}
	seen := make(map[string]bool, len(c.StorageFolders))
	for i, folder := range c.StorageFolders {
		if !filepath.IsAbs(folder.Path) {
			errs = append(errs, fmt.Errorf("storage_folders[%d]: path must be absolute, got %q", i, folder.Path))
		}
		if cleaned := filepath.Clean(folder.Path); seen[cleaned] {
			errs = append(errs, fmt.Errorf("storage_folders[%d]: %s listed twice", i, cleaned))
		} else {
			seen[cleaned] = true
		}
		if folder.MaximumSize <= 0 {
			errs = append(errs, fmt.Errorf("storage_folders[%d]: maximum_size must be positive", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// EnsurePaths creates the state directory and every storage folder.
func (c *Config) EnsurePaths() error {
	paths := []string{c.StateDir}
	for _, folder := range c.StorageFolders {
		paths = append(paths, folder.Path)
	}

	for _, path := range paths {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
