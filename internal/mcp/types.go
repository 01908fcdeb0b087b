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
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// ServerConfig defines how to reach a single MCP server. Exactly one of the
// two shapes is populated: stdio (Command/Args/Env) for servers spawned as
// local subprocesses, or remote (URL/Headers) for servers reached over
// streamable HTTP.
type ServerConfig struct {
	// Command is the executable to run (stdio shape).
	Command string `json:"command,omitempty"`

	// Args are the command-line arguments (stdio shape).
	Args []string `json:"args,omitempty"`

	// Env are environment variables passed to the subprocess (stdio shape).
	Env map[string]string `json:"env,omitempty"`

	// URL is the server endpoint (remote shape).
	URL string `json:"url,omitempty"`

	// Headers are sent with every request to the endpoint (remote shape).
	Headers map[string]string `json:"headers,omitempty"`
}

// IsStdio reports whether the config uses the subprocess transport.
func (c ServerConfig) IsStdio() bool {
	return c.Command != ""
}

// IsRemote reports whether the config uses the HTTP transport.
func (c ServerConfig) IsRemote() bool {
	return c.URL != ""
}

// Validate checks that exactly one transport shape is present.
func (c ServerConfig) Validate() error {
	switch {
	case c.IsStdio() && c.IsRemote():
		return fmt.Errorf("server config must not set both command and url")
	case !c.IsStdio() && !c.IsRemote():
		return fmt.Errorf("server config requires either command or url")
	}
	return nil
}

// Equal reports whether two configs are deep-equal. Reconciliation uses this
// to decide whether a live client needs to be reconnected with new settings.
func (c ServerConfig) Equal(other ServerConfig) bool {
	return reflect.DeepEqual(c, other)
}

// Clone returns a deep copy of the config.
func (c ServerConfig) Clone() ServerConfig {
	out := c
	out.Args = slices.Clone(c.Args)
	out.Env = maps.Clone(c.Env)
	out.Headers = maps.Clone(c.Headers)
	return out
}

// ServerRecord is the persisted, addressable unit for a server definition.
type ServerRecord struct {
	// ID identifies the record. File-origin records carry the deterministic
	// id from DeriveID; database-origin records carry a random UUID assigned
	// at creation.
	ID string `json:"id"`

	// Name is the human-facing server name.
	Name string `json:"name"`

	// Config is the transport configuration.
	Config ServerConfig `json:"config"`

	// FileBased marks records that originate from the default config file.
	// Such records are read-only: save and delete attempts must fail.
	FileBased bool `json:"fileBased"`
}

// Status is the lifecycle state of a pooled client.
type Status string

const (
	// StatusLoading indicates a connection attempt is in progress.
	StatusLoading Status = "loading"
	// StatusConnected indicates the handshake and tool discovery succeeded.
	StatusConnected Status = "connected"
	// StatusError indicates the connection attempt failed.
	StatusError Status = "error"
	// StatusDisconnected indicates an explicit teardown.
	StatusDisconnected Status = "disconnected"
)

// ToolDefinition represents an MCP tool discovered from a connected server.
// Maps to the MCP protocol's Tool schema.
type ToolDefinition struct {
	// Name is the unique identifier for this tool
	Name string `json:"name"`

	// Description explains what the tool does
	Description string `json:"description"`

	// InputSchema defines the expected input parameters using JSON Schema
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolCallRequest represents a request to execute an MCP tool.
type ToolCallRequest struct {
	// Name is the tool to execute
	Name string `json:"name"`

	// Arguments contains the input parameters for the tool
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResponse represents the result of an MCP tool execution.
type ToolCallResponse struct {
	// Content contains the tool's output
	Content []ContentItem `json:"content"`

	// IsError indicates if the tool execution failed
	IsError bool `json:"isError,omitempty"`
}

// ContentItem represents a piece of content in an MCP response.
type ContentItem struct {
	// Type is the content type (text, image, resource)
	Type string `json:"type"`

	// Text is the text content (for type="text")
	Text string `json:"text,omitempty"`

	// Data is the base64-encoded data (for type="image")
	Data string `json:"data,omitempty"`

	// MimeType is the MIME type for binary content
	MimeType string `json:"mimeType,omitempty"`
}

// ClientInfo is a read-only snapshot of one pooled client.
type ClientInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Config    ServerConfig     `json:"config"`
	FileBased bool             `json:"fileBased"`
	Status    Status           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Tools     []ToolDefinition `json:"toolInfo"`
}
