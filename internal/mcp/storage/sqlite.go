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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/mcpool/internal/mcp"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ mcp.ConfigStore = (*DBStore)(nil)
	_ mcp.ConfigStore = (*FileStore)(nil)
	_ mcp.ConfigStore = (*HybridStore)(nil)
)

// DBStore persists server records in SQLite. Records created here carry
// random UUIDs and FileBased=false; they survive until explicitly deleted.
type DBStore struct {
	db *sql.DB

	// logger is used for structured logging
	logger *slog.Logger

	// pollInterval, when non-zero, re-syncs the pool periodically so that
	// rows written by other processes are eventually picked up
	pollInterval time.Duration

	// mu protects the poll state below
	mu         sync.Mutex
	pollCancel context.CancelFunc
}

// DBStoreConfig contains SQLite connection configuration.
type DBStoreConfig struct {
	// Path is the database file path (required)
	Path string

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// PollInterval enables periodic pool syncs when non-zero
	PollInterval time.Duration
}

// NewDBStore opens the database, configures pragmas, and runs migrations.
func NewDBStore(cfg DBStoreConfig) (*DBStore, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &DBStore{db: db, logger: logger, pollInterval: cfg.PollInterval}

	if err := s.configurePragmas(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *DBStore) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate runs database migrations.
func (s *DBStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			file_based INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_name ON mcp_servers(name)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_file_based ON mcp_servers(file_based)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// LoadAll returns every stored record. Rows whose config no longer parses
// are skipped with a warning so one corrupt row cannot block the rest.
func (s *DBStore) LoadAll(ctx context.Context) ([]mcp.ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, config, file_based FROM mcp_servers ORDER BY name`)
	if err != nil {
		return nil, mcp.ErrStorage("query", err)
	}
	defer rows.Close()

	var records []mcp.ServerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable mcp server row", "error", err)
			continue
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.ErrStorage("scan", err)
	}
	return records, nil
}

// Get returns the record for id, or nil when it does not exist.
func (s *DBStore) Get(ctx context.Context, id string) (*mcp.ServerRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, config, file_based FROM mcp_servers WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.ErrStorage("get", err)
	}
	return rec, nil
}

// Has reports whether a record exists for id.
func (s *DBStore) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM mcp_servers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mcp.ErrStorage("has", err)
	}
	return true, nil
}

// Save upserts a record. An empty id gets a fresh random UUID; the
// deterministic id formula is never applied to user-created records.
func (s *DBStore) Save(ctx context.Context, rec mcp.ServerRecord) (*mcp.ServerRecord, error) {
	if err := rec.Config.Validate(); err != nil {
		return nil, mcp.NewError(mcp.ErrorCodeValidation, err.Error())
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return nil, mcp.ErrStorage("marshal", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (id, name, config, file_based, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config = excluded.config,
			file_based = excluded.file_based,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, string(configJSON), boolToInt(rec.FileBased), now, now)
	if err != nil {
		return nil, mcp.ErrStorage("save", err)
	}

	return &rec, nil
}

// Delete removes the record for id. Mirrored file records are protected: the
// hybrid store manages their lifecycle, so direct deletion is a policy error.
func (s *DBStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return mcp.ErrServerNotFound(id)
	}
	if rec.FileBased {
		return mcp.ErrReadOnlyServer(rec.Name)
	}
	return s.deleteByID(ctx, id)
}

// deleteByID removes a row without the read-only policy check. The hybrid
// store uses it to garbage-collect stale file mirrors.
func (s *DBStore) deleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, id); err != nil {
		return mcp.ErrStorage("delete", err)
	}
	return nil
}

// Init optionally starts periodic polling so that rows written by another
// process converge into the pool. Idempotent.
func (s *DBStore) Init(ctx context.Context, pool *mcp.Pool) error {
	if s.pollInterval == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCancel != nil {
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pool.Sync(pollCtx)
			case <-pollCtx.Done():
				return
			}
		}
	}()

	return nil
}

// Close stops polling and closes the database.
func (s *DBStore) Close() error {
	s.mu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	s.mu.Unlock()
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one mcp_servers row.
func scanRecord(sc scanner) (*mcp.ServerRecord, error) {
	var (
		rec        mcp.ServerRecord
		configJSON string
		fileBased  int
	)
	if err := sc.Scan(&rec.ID, &rec.Name, &configJSON, &fileBased); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.Config); err != nil {
		return nil, fmt.Errorf("invalid config for server %s: %w", rec.ID, err)
	}
	rec.FileBased = fileBased != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
