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

// Package api exposes the pool over a small HTTP surface: server listings
// with sanitized configs, record CRUD, the aggregated tool map, and
// Prometheus metrics.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/mcpool/internal/mcp"
)

// Server handles HTTP requests against the pool and its config store.
type Server struct {
	pool   *mcp.Pool
	store  mcp.ConfigStore
	logger *slog.Logger
}

// NewServer creates an API server over the given pool and store.
func NewServer(pool *mcp.Pool, store mcp.ConfigStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pool: pool, store: store, logger: logger}
}

// Routes returns the HTTP handler for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/servers", s.handleListServers)
	mux.HandleFunc("POST /v1/servers", s.handleSaveServer)
	mux.HandleFunc("DELETE /v1/servers/{id}", s.handleDeleteServer)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// serverView is the client-facing representation of one pooled server.
// Config is sanitized: secrets never leave the read boundary.
type serverView struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	FileBased bool             `json:"fileBased"`
	Status    mcp.Status       `json:"status"`
	Error     string           `json:"error,omitempty"`
	ToolCount int              `json:"toolCount"`
	Config    mcp.ServerConfig `json:"config"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	clients := s.pool.Clients()
	views := make([]serverView, 0, len(clients))
	for _, c := range clients {
		views = append(views, serverView{
			ID:        c.ID,
			Name:      c.Name,
			FileBased: c.FileBased,
			Status:    c.Status,
			Error:     c.Error,
			ToolCount: len(c.Tools),
			Config:    mcp.Sanitize(c.Config),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

type saveServerRequest struct {
	ID     string           `json:"id,omitempty"`
	Name   string           `json:"name"`
	Config mcp.ServerConfig `json:"config"`
}

func (s *Server) handleSaveServer(w http.ResponseWriter, r *http.Request) {
	var req saveServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "server name is required")
		return
	}

	rec, err := s.store.Save(r.Context(), mcp.ServerRecord{
		ID:     req.ID,
		Name:   req.Name,
		Config: req.Config,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	// Connect the new or updated server; a connection failure shows up as
	// status "error" in listings rather than failing the save.
	if err := s.pool.RefreshClient(r.Context(), rec.ID); err != nil {
		s.logger.Warn("saved server failed to connect", "server", rec.Name, "error", err)
	}

	view := serverView{
		ID:        rec.ID,
		Name:      rec.Name,
		FileBased: rec.FileBased,
		Config:    mcp.Sanitize(rec.Config),
	}
	if info := s.pool.Client(rec.ID); info != nil {
		view.Status = info.Status
		view.Error = info.Error
		view.ToolCount = len(info.Tools)
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.pool.RemoveClient(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pool.Tools())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps the package error taxonomy onto HTTP statuses. Policy
// violations (mutating a read-only record) surface with their full message.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch mcp.CodeOf(err) {
	case mcp.ErrorCodeReadOnly:
		s.writeError(w, http.StatusForbidden, err.Error())
	case mcp.ErrorCodeNotFound:
		s.writeError(w, http.StatusNotFound, err.Error())
	case mcp.ErrorCodeValidation:
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("storage operation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
