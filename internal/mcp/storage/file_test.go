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

package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/mcpool/internal/mcp"
)

var uuidShape = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// stubConn and stubDialer satisfy the pool interfaces for watch wiring tests.
type stubConn struct{}

func (stubConn) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) { return nil, nil }
func (stubConn) CallTool(ctx context.Context, req mcp.ToolCallRequest) (*mcp.ToolCallResponse, error) {
	return &mcp.ToolCallResponse{}, nil
}
func (stubConn) Close() error { return nil }

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, name string, config mcp.ServerConfig) (mcp.Conn, error) {
	return stubConn{}, nil
}

// fakeWatcher replaces fsnotify in tests; changes are injected by hand.
type fakeWatcher struct {
	mu       sync.Mutex
	onChange func()
	closed   bool
}

func (w *fakeWatcher) Watch(ctx context.Context, path string, onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = onChange
	return nil
}

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWatcher) fire() {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func TestFileStore_LoadAll(t *testing.T) {
	path := writeConfigFile(t, `{
		"github": {"command": "npx", "args": ["-y", "server-github"]},
		"docs": {"url": "https://docs.example.com/mcp"}
	}`)
	store := NewFileStore(FileStoreConfig{Path: path})

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by name, all file-based, ids in canonical UUID shape.
	assert.Equal(t, "docs", records[0].Name)
	assert.Equal(t, "github", records[1].Name)
	for _, rec := range records {
		assert.True(t, rec.FileBased)
		assert.Regexp(t, uuidShape, rec.ID)
	}

	// Reloading derives the same ids.
	again, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records, again)
}

func TestFileStore_LoadAll_ExpandsEnv(t *testing.T) {
	t.Setenv("GH_TOKEN", "tok-999")
	path := writeConfigFile(t, `{
		"github": {"command": "npx", "env": {"GITHUB_TOKEN": "${GH_TOKEN}"}}
	}`)
	store := NewFileStore(FileStoreConfig{Path: path})

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tok-999", records[0].Config.Env["GITHUB_TOKEN"])
}

func TestFileStore_LoadAll_MissingFile(t *testing.T) {
	store := NewFileStore(FileStoreConfig{Path: filepath.Join(t.TempDir(), "absent.json")})

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStore_LoadAll_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)
	store := NewFileStore(FileStoreConfig{Path: path})

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err, "a corrupt file degrades to zero records")
	assert.Empty(t, records)
}

func TestFileStore_LoadAll_SkipsMalformedEntry(t *testing.T) {
	path := writeConfigFile(t, `{
		"good": {"command": "npx"},
		"both": {"command": "npx", "url": "https://example.com"},
		"neither": {}
	}`)
	store := NewFileStore(FileStoreConfig{Path: path})

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "entries that are not exactly one shape are skipped")
	assert.Equal(t, "good", records[0].Name)
}

func TestFileStore_GetAndHas(t *testing.T) {
	path := writeConfigFile(t, `{"github": {"command": "npx"}}`)
	store := NewFileStore(FileStoreConfig{Path: path})
	ctx := context.Background()

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	id := records[0].ID

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "github", rec.Name)

	ok, err := store.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = store.Get(ctx, "unknown-id")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileStore_SaveAndDeleteAreReadOnly(t *testing.T) {
	path := writeConfigFile(t, `{"github": {"command": "npx"}}`)
	store := NewFileStore(FileStoreConfig{Path: path})
	ctx := context.Background()

	_, err := store.Save(ctx, mcp.ServerRecord{Name: "github", Config: mcp.ServerConfig{Command: "npx"}})
	require.Error(t, err)
	assert.Equal(t, mcp.ErrorCodeReadOnly, mcp.CodeOf(err))

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)

	err = store.Delete(ctx, records[0].ID)
	require.Error(t, err)
	assert.Equal(t, mcp.ErrorCodeReadOnly, mcp.CodeOf(err))
	assert.Contains(t, err.Error(), `"github"`, "the policy error names the server")

	err = store.Delete(ctx, "unknown-id")
	assert.Equal(t, mcp.ErrorCodeNotFound, mcp.CodeOf(err))
}

func TestFileStore_Init_DebouncedSync(t *testing.T) {
	path := writeConfigFile(t, `{}`)
	watcher := &fakeWatcher{}
	store := NewFileStore(FileStoreConfig{
		Path:           path,
		DebounceWindow: 20 * time.Millisecond,
		NewWatcher:     func() (PathWatcher, error) { return watcher, nil },
	})
	pool := mcp.NewPool(mcp.PoolConfig{Store: store, Dialer: stubDialer{}})
	ctx := context.Background()

	require.NoError(t, store.Init(ctx, pool))
	require.NoError(t, store.Init(ctx, pool), "init is idempotent")

	// The pool is empty until the file changes and the debounce settles.
	require.Empty(t, pool.Clients())
	require.NoError(t, os.WriteFile(path, []byte(`{"late": {"command": "npx"}}`), 0o600))

	// A burst of events collapses into one trailing-edge sync.
	watcher.fire()
	watcher.fire()
	watcher.fire()

	require.Eventually(t, func() bool {
		return len(pool.Clients()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "late", pool.Clients()[0].Name)

	require.NoError(t, store.Close())
	watcher.mu.Lock()
	closed := watcher.closed
	watcher.mu.Unlock()
	assert.True(t, closed)
}
