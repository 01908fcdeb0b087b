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
	"log/slog"
	"sort"
	"sync"
	"time"
)

// clientEntry tracks the runtime state of one pooled server.
type clientEntry struct {
	// mu serializes all mutations for this id. Concurrent add/remove for the
	// same server must never leave two live connections open.
	mu sync.Mutex

	// id is the record identifier this entry is keyed by
	id string

	// name is the human-facing server name
	name string

	// config is the configuration the current connection was made with
	config ServerConfig

	// fileBased marks entries backed by the default config file
	fileBased bool

	// status is the current lifecycle state
	status Status

	// lastError is the most recent connection error message
	lastError string

	// conn is the live transport, nil unless status is connected
	conn Conn

	// tools is the metadata discovered during the last successful handshake
	tools []ToolDefinition

	// removed marks entries that have been taken out of the pool map
	removed bool
}

// closeConnLocked tears down the live transport if any. Caller holds e.mu.
func (e *clientEntry) closeConnLocked() {
	if e.conn == nil {
		return
	}
	_ = e.conn.Close()
	e.conn = nil
	connectedClients.Dec()
}

// Pool owns the id -> live client map and serializes mutations to it. It is
// constructed once at the composition root and passed by reference to every
// caller that needs it; there is no ambient global instance.
type Pool struct {
	// store provides the desired record set and change notifications
	store ConfigStore

	// dialer establishes transports to servers
	dialer Dialer

	// logger is used for structured logging
	logger *slog.Logger

	// connectTimeout bounds each connection attempt
	connectTimeout time.Duration

	// mu protects the entries map
	mu sync.RWMutex

	// entries tracks all pooled clients by record id
	entries map[string]*clientEntry
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Store provides server records (required)
	Store ConfigStore

	// Dialer establishes connections (defaults to StdDialer)
	Dialer Dialer

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// ConnectTimeout bounds each connection attempt (defaults to 10s)
	ConnectTimeout time.Duration
}

// NewPool creates a new client pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &StdDialer{}
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Pool{
		store:          cfg.Store,
		dialer:         dialer,
		logger:         logger,
		connectTimeout: timeout,
		entries:        make(map[string]*clientEntry),
	}
}

// Init performs the initial load-and-reconcile pass and then hands the pool
// to the store so it can begin watching for configuration changes.
func (p *Pool) Init(ctx context.Context) error {
	p.Sync(ctx)
	if err := p.store.Init(ctx, p); err != nil {
		return ErrStorage("init", err)
	}
	return nil
}

// Sync loads the desired record set from storage and reconciles the pool
// against it. A storage failure degrades to zero records and is logged, not
// propagated; Sync is the trigger target for file-watch and polling events
// and must be safe to call repeatedly and concurrently.
func (p *Pool) Sync(ctx context.Context) {
	records, err := p.store.LoadAll(ctx)
	if err != nil {
		p.logger.Warn("failed to load mcp server records, treating as empty", "error", err)
		records = nil
	}
	p.Reconcile(ctx, records)
}

// AddClient connects a client for the given record, replacing any existing
// connection for the same id. The outcome is always recorded as connected or
// error; an entry is never left at loading past the attempt. The returned
// error mirrors the recorded outcome for callers that want it; reconciliation
// logs it instead of propagating.
func (p *Pool) AddClient(ctx context.Context, id, name string, config ServerConfig, fileBased bool) error {
	e := p.lockEntry(id)
	defer e.mu.Unlock()

	e.closeConnLocked()
	e.name = name
	e.config = config.Clone()
	e.fileBased = fileBased
	e.status = StatusLoading
	e.lastError = ""

	dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	conn, err := p.dialer.Dial(dialCtx, name, config)
	if err == nil {
		var tools []ToolDefinition
		tools, err = conn.ListTools(dialCtx)
		if err != nil {
			_ = conn.Close()
		} else {
			e.conn = conn
			e.tools = tools
			e.status = StatusConnected
			connectedClients.Inc()
			recordConnectOutcome("connected")
			p.logger.Info("mcp client connected",
				"server", name,
				"id", id,
				"tools", len(tools),
			)
			return nil
		}
	}

	e.status = StatusError
	e.lastError = err.Error()
	e.tools = nil
	recordConnectOutcome("error")
	p.logger.Error("failed to connect mcp client",
		"server", name,
		"id", id,
		"error", err,
	)
	return ErrConnectFailed(name, err)
}

// RemoveClient disconnects and removes the entry for id. Removing an unknown
// id is a no-op, not an error.
func (p *Pool) RemoveClient(id string) {
	p.mu.Lock()
	e, exists := p.entries[id]
	if exists {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if !exists {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.closeConnLocked()
	e.status = StatusDisconnected
	e.mu.Unlock()

	p.logger.Info("mcp client removed", "server", e.name, "id", id)
}

// RefreshClient re-reads the record for id from storage and re-applies it.
// If the record no longer exists the client is removed instead.
func (p *Pool) RefreshClient(ctx context.Context, id string) error {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		p.logger.Warn("failed to read mcp server record for refresh", "id", id, "error", err)
		return ErrStorage("get", err)
	}
	if rec == nil {
		p.RemoveClient(id)
		return nil
	}
	return p.AddClient(ctx, rec.ID, rec.Name, rec.Config, rec.FileBased)
}

// DisconnectClient tears down the transport for id but keeps the entry and
// its discovered metadata for reporting. Unknown ids are a no-op.
func (p *Pool) DisconnectClient(id string) {
	p.mu.RLock()
	e, exists := p.entries[id]
	p.mu.RUnlock()

	if !exists {
		return
	}

	e.mu.Lock()
	e.closeConnLocked()
	e.status = StatusDisconnected
	e.mu.Unlock()

	p.logger.Info("mcp client disconnected", "server", e.name, "id", id)
}

// Client returns a snapshot of the entry for id, or nil if it is not pooled.
func (p *Pool) Client(id string) *ClientInfo {
	p.mu.RLock()
	e, exists := p.entries[id]
	p.mu.RUnlock()

	if !exists {
		return nil
	}

	info := e.snapshot()
	return &info
}

// Clients returns a snapshot of all pooled clients, ordered by name.
func (p *Pool) Clients() []ClientInfo {
	p.mu.RLock()
	entries := make([]*clientEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Tools aggregates tool metadata across all connected clients. Keys are
// "<server>.<tool>"; if two servers share a name the record id is used
// instead so identically named tools never collide.
func (p *Pool) Tools() map[string]ToolDefinition {
	out := make(map[string]ToolDefinition)
	for _, info := range p.Clients() {
		if info.Status != StatusConnected {
			continue
		}
		for _, tool := range info.Tools {
			key := info.Name + "." + tool.Name
			if _, taken := out[key]; taken {
				key = info.ID + "." + tool.Name
			}
			out[key] = tool
		}
	}
	return out
}

// CallTool routes a tool call to the connected client for id.
func (p *Pool) CallTool(ctx context.Context, id string, req ToolCallRequest) (*ToolCallResponse, error) {
	p.mu.RLock()
	e, exists := p.entries[id]
	p.mu.RUnlock()

	if !exists {
		return nil, ErrServerNotFound(id)
	}

	e.mu.Lock()
	conn := e.conn
	name := e.name
	e.mu.Unlock()

	if conn == nil {
		return nil, NewError(ErrorCodeConnectFailed, "MCP server "+name+" is not connected")
	}
	return conn.CallTool(ctx, req)
}

// Close disconnects every pooled client. Entries are kept for reporting.
func (p *Pool) Close() {
	for _, info := range p.Clients() {
		p.DisconnectClient(info.ID)
	}
}

// getOrCreate returns the entry for id, creating it if needed.
func (p *Pool) getOrCreate(id string) *clientEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, exists := p.entries[id]; exists {
		return e
	}
	e := &clientEntry{id: id, status: StatusLoading}
	p.entries[id] = e
	return e
}

// lockEntry returns the current entry for id with its lock held. When the
// entry was removed while waiting for the lock, the map slot may since have
// been taken by a newer entry from a concurrent add; mutating the stale one
// would leave two live connections for the same id. Reinsert only while the
// slot is still empty, otherwise retry against the entry that owns it now.
func (p *Pool) lockEntry(id string) *clientEntry {
	for {
		e := p.getOrCreate(id)
		e.mu.Lock()
		if !e.removed {
			return e
		}

		p.mu.Lock()
		if _, taken := p.entries[id]; !taken {
			e.removed = false
			p.entries[id] = e
			p.mu.Unlock()
			return e
		}
		p.mu.Unlock()
		e.mu.Unlock()
	}
}

// snapshot copies the entry state under its lock.
func (e *clientEntry) snapshot() ClientInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	tools := make([]ToolDefinition, len(e.tools))
	copy(tools, e.tools)

	return ClientInfo{
		ID:        e.id,
		Name:      e.name,
		Config:    e.config.Clone(),
		FileBased: e.fileBased,
		Status:    e.status,
		Error:     e.lastError,
		Tools:     tools,
	}
}
