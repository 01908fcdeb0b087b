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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tombee/mcpool/internal/mcp"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"braced", "${TEST_VAR} world", "hello world"},
		{"bare", "$TEST_VAR world", "hello world"},
		{"unset left literal", "${NOPE} stays", "${NOPE} stays"},
		{"unset bare left literal", "$NOPE stays", "$NOPE stays"},
		{"no placeholder", "plain text", "plain text"},
		{"adjacent text needs braces", "${TEST_VAR}s", "hellos"},
		{"multiple", "${TEST_VAR}-$TEST_VAR", "hello-hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.input))
		})
	}
}

func TestExpandConfigEnv(t *testing.T) {
	t.Setenv("API_TOKEN", "tok-123")
	t.Setenv("MCP_HOST", "mcp.example.com")

	config := mcp.ServerConfig{
		Command: "/bin/$MCP_HOST",
		Args:    []string{"--token", "${API_TOKEN}"},
		Env:     map[string]string{"TOKEN": "${API_TOKEN}", "PLAIN": "x"},
	}

	got := expandConfigEnv(config)
	assert.Equal(t, "/bin/mcp.example.com", got.Command)
	assert.Equal(t, []string{"--token", "tok-123"}, got.Args)
	assert.Equal(t, "tok-123", got.Env["TOKEN"])
	assert.Equal(t, "x", got.Env["PLAIN"])

	// The input is not mutated.
	assert.Equal(t, "${API_TOKEN}", config.Args[1])
	assert.Equal(t, "${API_TOKEN}", config.Env["TOKEN"])
}

func TestExpandConfigEnv_RemoteFields(t *testing.T) {
	t.Setenv("MCP_HOST", "mcp.example.com")
	t.Setenv("API_TOKEN", "tok-123")

	config := mcp.ServerConfig{
		URL:     "https://${MCP_HOST}/mcp",
		Headers: map[string]string{"Authorization": "Bearer ${API_TOKEN}"},
	}

	got := expandConfigEnv(config)
	assert.Equal(t, "https://mcp.example.com/mcp", got.URL)
	assert.Equal(t, "Bearer tok-123", got.Headers["Authorization"])
}
