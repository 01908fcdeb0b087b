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
	"log/slog"

	"github.com/tombee/mcpool/internal/mcp"
)

// HybridStore merges read-only file-defined defaults with mutable
// database-defined user records. On every load it mirrors the current file
// records into the database so rows referenced by foreign keys elsewhere
// stay resolvable, and garbage-collects database rows that used to be file
// mirrors but no longer appear in the file. User records are never touched
// by that cleanup.
type HybridStore struct {
	file   *FileStore
	db     *DBStore
	logger *slog.Logger
}

// NewHybridStore creates a hybrid config store over the given backends.
func NewHybridStore(file *FileStore, db *DBStore, logger *slog.Logger) *HybridStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridStore{file: file, db: db, logger: logger}
}

// LoadAll returns the union of file defaults and database user records.
// Either source failing degrades to zero records from that source. After the
// merge the database mirror is synchronized; mirror failures are logged and
// tolerated for a cycle, they do not fail the load.
func (s *HybridStore) LoadAll(ctx context.Context) ([]mcp.ServerRecord, error) {
	fileRecs, err := s.file.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("failed to load file-based mcp servers", "error", err)
		fileRecs = nil
	}
	dbRecs, err := s.db.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("failed to load database mcp servers", "error", err)
		dbRecs = nil
	}

	fileIDs := make(map[string]bool, len(fileRecs))
	for _, rec := range fileRecs {
		fileIDs[rec.ID] = true
	}

	merged := make([]mcp.ServerRecord, 0, len(fileRecs)+len(dbRecs))
	merged = append(merged, fileRecs...)
	for _, rec := range dbRecs {
		if fileIDs[rec.ID] {
			// The database copy of a current file record is just the mirror.
			continue
		}
		if s.isFileMirror(rec) {
			// A mirror whose server left the file: stale, excluded here and
			// removed by syncMirrors below.
			continue
		}
		merged = append(merged, rec)
	}

	s.syncMirrors(ctx, fileRecs, dbRecs, fileIDs)
	return merged, nil
}

// isFileMirror reports whether a database row is a mirror of a file record.
// The explicit file_based column is the primary signal; recomputing the
// deterministic id formula covers rows written before the column existed.
func (s *HybridStore) isFileMirror(rec mcp.ServerRecord) bool {
	return rec.FileBased || rec.ID == mcp.DeriveID(rec.Name, rec.Config)
}

// syncMirrors upserts every current file record into the database and
// removes stale mirror rows. Rows that are not mirrors are user records and
// are left alone no matter what.
func (s *HybridStore) syncMirrors(ctx context.Context, fileRecs, dbRecs []mcp.ServerRecord, fileIDs map[string]bool) {
	for _, rec := range fileRecs {
		if _, err := s.db.Save(ctx, rec); err != nil {
			s.logger.Warn("failed to mirror file-based mcp server",
				"server", rec.Name,
				"error", err,
			)
		}
	}

	for _, rec := range dbRecs {
		if fileIDs[rec.ID] || !s.isFileMirror(rec) {
			continue
		}
		if err := s.db.deleteByID(ctx, rec.ID); err != nil {
			s.logger.Warn("failed to remove stale mcp server mirror",
				"server", rec.Name,
				"id", rec.ID,
				"error", err,
			)
			continue
		}
		s.logger.Info("removed stale mcp server mirror", "server", rec.Name, "id", rec.ID)
	}
}

// Get checks file defaults first, then the database.
func (s *HybridStore) Get(ctx context.Context, id string) (*mcp.ServerRecord, error) {
	rec, err := s.file.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	return s.db.Get(ctx, id)
}

// Has reports whether either source has a record for id.
func (s *HybridStore) Has(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	return rec != nil, err
}

// Save upserts a user record in the database. File-defined servers cannot be
// modified through this path.
func (s *HybridStore) Save(ctx context.Context, rec mcp.ServerRecord) (*mcp.ServerRecord, error) {
	if rec.ID != "" {
		fileRec, err := s.file.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if fileRec != nil {
			return s.file.Save(ctx, rec)
		}
	}
	rec.FileBased = false
	return s.db.Save(ctx, rec)
}

// Delete removes a user record. Deleting a file-defined server fails with
// the read-only policy error naming it.
func (s *HybridStore) Delete(ctx context.Context, id string) error {
	fileRec, err := s.file.Get(ctx, id)
	if err != nil {
		return err
	}
	if fileRec != nil {
		return mcp.ErrReadOnlyServer(fileRec.Name)
	}
	return s.db.Delete(ctx, id)
}

// Init wires both backends' change detection to the pool.
func (s *HybridStore) Init(ctx context.Context, pool *mcp.Pool) error {
	if err := s.file.Init(ctx, pool); err != nil {
		return err
	}
	return s.db.Init(ctx, pool)
}

// Close releases both backends.
func (s *HybridStore) Close() error {
	fileErr := s.file.Close()
	dbErr := s.db.Close()
	if fileErr != nil {
		return fileErr
	}
	return dbErr
}
