// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the mcpool daemon settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode selects which config store backs the pool.
type StorageMode string

const (
	// StorageFile reads server definitions from the JSON config file only.
	StorageFile StorageMode = "file"
	// StorageDB reads server definitions from the SQLite database only.
	StorageDB StorageMode = "db"
	// StorageHybrid merges file defaults with database user records.
	StorageHybrid StorageMode = "hybrid"
)

// Settings is the daemon configuration, stored at
// ~/.config/mcpool/settings.yaml.
type Settings struct {
	// Storage selects the config store backend (file, db, hybrid).
	Storage StorageMode `yaml:"storage,omitempty"`

	// ConfigFile is the path to the JSON server-defaults file.
	ConfigFile string `yaml:"config_file,omitempty"`

	// DatabasePath is the SQLite database location.
	DatabasePath string `yaml:"database_path,omitempty"`

	// DebounceMS is the file-watch debounce window in milliseconds.
	DebounceMS int `yaml:"debounce_ms,omitempty"`

	// ConnectTimeoutS bounds each client connection attempt in seconds.
	ConnectTimeoutS int `yaml:"connect_timeout_s,omitempty"`

	// Listen is the HTTP API listen address.
	Listen string `yaml:"listen,omitempty"`
}

// ConfigDir returns the mcpool configuration directory, honoring
// XDG_CONFIG_HOME.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mcpool"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mcpool"), nil
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	dir, err := ConfigDir()
	if err != nil {
		dir = "."
	}
	return &Settings{
		Storage:         StorageHybrid,
		ConfigFile:      filepath.Join(dir, "servers.json"),
		DatabasePath:    filepath.Join(dir, "mcpool.db"),
		DebounceMS:      1000,
		ConnectTimeoutS: 10,
		Listen:          "127.0.0.1:8787",
	}
}

// Load reads settings from path, falling back to defaults when the file does
// not exist. An empty path uses the default location. Missing fields keep
// their default values.
func Load(path string) (*Settings, error) {
	if path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "settings.yaml")
	}

	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks field values.
func (s *Settings) Validate() error {
	switch s.Storage {
	case StorageFile, StorageDB, StorageHybrid:
	default:
		return fmt.Errorf("invalid storage mode %q (must be 'file', 'db', or 'hybrid')", s.Storage)
	}
	if s.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be non-negative")
	}
	if s.ConnectTimeoutS < 0 {
		return fmt.Errorf("connect_timeout_s must be non-negative")
	}
	return nil
}

// DebounceWindow returns the debounce window as a duration.
func (s *Settings) DebounceWindow() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// ConnectTimeout returns the connect timeout as a duration.
func (s *Settings) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutS) * time.Second
}
