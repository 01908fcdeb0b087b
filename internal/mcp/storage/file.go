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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tombee/mcpool/internal/mcp"
)

// DefaultDebounceWindow is the trailing-edge debounce applied to config file
// change events before a reconcile pass is triggered.
const DefaultDebounceWindow = time.Second

// FileStore reads server definitions from a single JSON document mapping
// server name to configuration. Records are rebuilt fresh on every load with
// deterministic ids and FileBased set; the store is read-only from the API's
// perspective, so Save and Delete always fail with a policy error.
type FileStore struct {
	// path is the JSON config file location
	path string

	// logger is used for structured logging
	logger *slog.Logger

	// debounceWindow coalesces bursts of file change events
	debounceWindow time.Duration

	// newWatcher builds the change-notification source (fsnotify by default)
	newWatcher func() (PathWatcher, error)

	// mu protects the watch state below
	mu       sync.Mutex
	watcher  PathWatcher
	debounce *debouncer
	started  bool
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Path is the JSON config file location (required)
	Path string

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceWindow coalesces file change bursts (defaults to 1s)
	DebounceWindow time.Duration

	// NewWatcher overrides the change-notification source, for tests
	NewWatcher func() (PathWatcher, error)
}

// NewFileStore creates a file-backed config store.
func NewFileStore(cfg FileStoreConfig) *FileStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.DebounceWindow
	if window == 0 {
		window = DefaultDebounceWindow
	}
	newWatcher := cfg.NewWatcher
	if newWatcher == nil {
		newWatcher = func() (PathWatcher, error) { return NewFSWatcher(logger) }
	}

	return &FileStore{
		path:           cfg.Path,
		logger:         logger,
		debounceWindow: window,
		newWatcher:     newWatcher,
	}
}

// LoadAll reads the config file and returns one file-based record per
// well-formed entry, ordered by name. A missing or unparseable file degrades
// to zero records with a warning; malformed entries are skipped individually.
func (s *FileStore) LoadAll(ctx context.Context) ([]mcp.ServerRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read mcp config file", "path", s.path, "error", err)
		}
		return nil, nil
	}

	var entries map[string]mcp.ServerConfig
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("invalid mcp config file, ignoring", "path", s.path, "error", err)
		return nil, nil
	}

	records := make([]mcp.ServerRecord, 0, len(entries))
	for name, config := range entries {
		config = expandConfigEnv(config)
		if err := config.Validate(); err != nil {
			s.logger.Warn("skipping malformed mcp server entry",
				"server", name,
				"error", err,
			)
			continue
		}
		records = append(records, mcp.ServerRecord{
			ID:        mcp.DeriveID(name, config),
			Name:      name,
			Config:    config,
			FileBased: true,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Get returns the file record for id, or nil when no entry derives to it.
func (s *FileStore) Get(ctx context.Context, id string) (*mcp.ServerRecord, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, nil
}

// Has reports whether a file record exists for id.
func (s *FileStore) Has(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	return rec != nil, err
}

// Save always fails: file-defined servers are read-only.
func (s *FileStore) Save(ctx context.Context, rec mcp.ServerRecord) (*mcp.ServerRecord, error) {
	name := rec.Name
	if name == "" {
		name = rec.ID
	}
	return nil, mcp.NewError(mcp.ErrorCodeReadOnly,
		fmt.Sprintf("Cannot modify default MCP server %q. Default servers are read-only.", name))
}

// Delete always fails for known records: file-defined servers are read-only.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return mcp.ErrServerNotFound(id)
	}
	return mcp.ErrReadOnlyServer(rec.Name)
}

// Init starts watching the config file and triggers a debounced pool sync on
// every change. Idempotent; additional calls are no-ops. The watcher only
// reports changes after this call, so the explicit startup load is never
// duplicated.
func (s *FileStore) Init(ctx context.Context, pool *mcp.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	watcher, err := s.newWatcher()
	if err != nil {
		return err
	}

	s.debounce = newDebouncer(s.debounceWindow, func() {
		s.logger.Info("mcp config file changed, reconciling", "path", s.path)
		pool.Sync(context.Background())
	})

	if err := watcher.Watch(ctx, s.path, s.debounce.Trigger); err != nil {
		_ = watcher.Close()
		return err
	}

	s.watcher = watcher
	s.started = true
	return nil
}

// Close stops the file watcher and cancels any pending debounced sync.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.debounce.Stop()
	return s.watcher.Close()
}
