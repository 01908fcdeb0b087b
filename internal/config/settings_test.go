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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/mcpool", dir)
}

func TestDefaultSettings(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := DefaultSettings()
	assert.Equal(t, StorageHybrid, s.Storage)
	assert.Equal(t, 1000, s.DebounceMS)
	assert.Equal(t, 10, s.ConnectTimeoutS)
	assert.Equal(t, "127.0.0.1:8787", s.Listen)
	assert.Equal(t, time.Second, s.DebounceWindow())
	assert.Equal(t, 10*time.Second, s.ConnectTimeout())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StorageHybrid, s.Storage)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: db\nlisten: \"0.0.0.0:9000\"\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageDB, s.Storage)
	assert.Equal(t, "0.0.0.0:9000", s.Listen)
	assert.Equal(t, 1000, s.DebounceMS, "unset fields keep defaults")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [broken"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidStorageMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: redis\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage mode")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"file mode", Settings{Storage: StorageFile}, false},
		{"db mode", Settings{Storage: StorageDB}, false},
		{"hybrid mode", Settings{Storage: StorageHybrid}, false},
		{"unknown mode", Settings{Storage: "etcd"}, true},
		{"negative debounce", Settings{Storage: StorageFile, DebounceMS: -1}, true},
		{"negative timeout", Settings{Storage: StorageFile, ConnectTimeoutS: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
