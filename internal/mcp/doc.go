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

// Package mcp maintains a pool of live connections to Model Context Protocol
// servers and keeps that pool converged with a desired set of server
// configurations.
//
// Server definitions come from a ConfigStore (file, database, or a hybrid of
// both). The Pool owns the id -> live client map, serializes mutations per
// server, and exposes connect/disconnect/refresh/list operations plus an
// aggregated tool map across all connected servers. Reconcile computes the
// minimal add/refresh/remove diff between the desired record set and the live
// pool and applies it; it is the single code path behind both explicit CRUD
// operations and debounced config-file change events.
//
// Failure of one server is always isolated to that server's entry: it shows
// up as status "error" with the message retained, and never blocks or rolls
// back sibling operations.
package mcp
