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

package mcp

import "context"

// ConfigStore is the contract shared by all server-configuration backends
// (file, database, hybrid). LoadAll failures are treated by callers as "zero
// records from this source", not as fatal; Delete of a file-based record must
// fail with a read-only policy error.
type ConfigStore interface {
	// LoadAll returns every known server record.
	LoadAll(ctx context.Context) ([]ServerRecord, error)

	// Get returns the record for id, or nil when it does not exist.
	Get(ctx context.Context, id string) (*ServerRecord, error)

	// Has reports whether a record exists for id.
	Has(ctx context.Context, id string) (bool, error)

	// Save upserts a record. When rec.ID is empty a new id is assigned.
	// Saving over a file-based record fails with a read-only policy error.
	Save(ctx context.Context, rec ServerRecord) (*ServerRecord, error)

	// Delete removes the record for id. Deleting a file-based record fails
	// with a read-only policy error naming the server.
	Delete(ctx context.Context, id string) error

	// Init wires change detection (file watching, polling) to the pool.
	// Idempotent; safe to call once at startup after the initial load.
	Init(ctx context.Context, pool *Pool) error
}
