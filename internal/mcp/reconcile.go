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

import (
	"context"
	"sync"
)

// Reconcile converges the live pool to the desired record set. A server is
// added (or reconnected) when it has no live client or its live config is not
// deep-equal to the desired one; live clients absent from the desired set are
// removed. Operations for different ids run concurrently and settle
// independently: one failing server never blocks or rolls back its siblings.
// When the pool already matches the desired set, Reconcile is a no-op.
func (p *Pool) Reconcile(ctx context.Context, desired []ServerRecord) {
	reconcileRuns.Inc()

	desiredByID := make(map[string]ServerRecord, len(desired))
	for _, rec := range desired {
		desiredByID[rec.ID] = rec
	}

	liveByID := make(map[string]ClientInfo)
	for _, info := range p.Clients() {
		liveByID[info.ID] = info
	}

	var wg sync.WaitGroup

	for id, rec := range desiredByID {
		live, exists := liveByID[id]
		if exists && live.Config.Equal(rec.Config) {
			continue
		}

		kind := "add"
		if exists {
			kind = "refresh"
		}
		recordReconcileOp(kind)

		wg.Add(1)
		go func(rec ServerRecord) {
			defer wg.Done()
			// AddClient records and logs the outcome; a failure here only
			// marks that one entry as errored.
			_ = p.AddClient(ctx, rec.ID, rec.Name, rec.Config, rec.FileBased)
		}(rec)
	}

	for id := range liveByID {
		if _, wanted := desiredByID[id]; wanted {
			continue
		}
		recordReconcileOp("remove")

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p.RemoveClient(id)
		}(id)
	}

	wg.Wait()
}
