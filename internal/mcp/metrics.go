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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectAttempts tracks connection attempts by outcome
	connectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpool_connect_attempts_total",
			Help: "Total MCP client connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// connectedClients tracks the number of currently connected clients
	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpool_connected_clients",
			Help: "Number of currently connected MCP clients",
		},
	)

	// reconcileRuns tracks reconciliation passes
	reconcileRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcpool_reconcile_total",
			Help: "Total reconciliation passes",
		},
	)

	// reconcileOps tracks individual reconciliation operations
	reconcileOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpool_reconcile_operations_total",
			Help: "Total reconciliation operations by kind",
		},
		[]string{"kind"},
	)
)

// recordConnectOutcome increments the attempt counter
func recordConnectOutcome(outcome string) {
	connectAttempts.WithLabelValues(outcome).Inc()
}

// recordReconcileOp increments the per-operation counter
func recordReconcileOp(kind string) {
	reconcileOps.WithLabelValues(kind).Inc()
}
