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
	"fmt"
	"sync"
)

// fakeConn is an in-memory Conn for pool tests.
type fakeConn struct {
	mu     sync.Mutex
	tools  []ToolDefinition
	closed bool
}

func (c *fakeConn) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	return c.tools, nil
}

func (c *fakeConn) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	return &ToolCallResponse{Content: []ContentItem{{Type: "text", Text: "ok:" + req.Name}}}, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer records every dial and can be told to fail for given names.
type fakeDialer struct {
	mu    sync.Mutex
	dials []string
	conns map[string]*fakeConn
	all   []*fakeConn
	fail  map[string]error
	tools map[string][]ToolDefinition
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns: make(map[string]*fakeConn),
		fail:  make(map[string]error),
		tools: make(map[string][]ToolDefinition),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, name string, config ServerConfig) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, name)
	if err, ok := d.fail[name]; ok {
		return nil, err
	}
	conn := &fakeConn{tools: d.tools[name]}
	d.conns[name] = conn
	d.all = append(d.all, conn)
	return conn, nil
}

// openConns counts connections dialed so far that were never closed.
func (d *fakeDialer) openConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, conn := range d.all {
		if !conn.isClosed() {
			n++
		}
	}
	return n
}

func (d *fakeDialer) dialCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, dialed := range d.dials {
		if dialed == name {
			n++
		}
	}
	return n
}

func (d *fakeDialer) totalDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// fakeStore is an in-memory ConfigStore for pool tests.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]ServerRecord
	loadErr  error
	initOnce int
}

func newFakeStore(records ...ServerRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]ServerRecord)}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return s
}

func (s *fakeStore) LoadAll(ctx context.Context) ([]ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]ServerRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *fakeStore) Has(ctx context.Context, id string) (bool, error) {
	rec, err := s.Get(ctx, id)
	return rec != nil, err
}

func (s *fakeStore) Save(ctx context.Context, rec ServerRecord) (*ServerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("fake-%d", len(s.records)+1)
	}
	s.records[rec.ID] = rec
	return &rec, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrServerNotFound(id)
	}
	if rec.FileBased {
		return ErrReadOnlyServer(rec.Name)
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) Init(ctx context.Context, pool *Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initOnce++
	return nil
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}
