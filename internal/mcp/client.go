package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Conn is a live transport to one MCP server. Implementations must be safe
// for concurrent use after Connect returns.
type Conn interface {
	// ListTools retrieves the tools exposed by the server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool executes a tool on the server.
	CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error)

	// Close tears down the transport. Idempotent.
	Close() error
}

// Dialer establishes connections to MCP servers. The pool depends on this
// interface rather than a concrete transport so tests can substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, name string, config ServerConfig) (Conn, error)
}

// StdDialer dials MCP servers with the mcp-go client library: stdio servers
// are spawned as subprocesses, remote servers are reached over streamable
// HTTP with the configured headers.
type StdDialer struct {
	// Timeout bounds each tool call (defaults to 30s).
	Timeout time.Duration
}

// Dial connects to the server, performs the initialize handshake, and returns
// a ready Conn. The caller bounds the whole attempt with ctx.
func (d *StdDialer) Dial(ctx context.Context, name string, config ServerConfig) (Conn, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		mcpClient *client.Client
		err       error
	)
	if config.IsStdio() {
		mcpClient, err = client.NewStdioMCPClient(config.Command, envList(config.Env), config.Args...)
	} else {
		mcpClient, err = client.NewStreamableHttpClient(config.URL,
			transport.WithHTTPHeaders(config.Headers))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &mcpConn{serverName: name, client: mcpClient, timeout: timeout}
	if err := c.initialize(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return c, nil
}

// envList flattens an env map into KEY=VALUE form with deterministic order.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// mcpConn wraps an mcp-go client connection to one server.
type mcpConn struct {
	serverName string
	client     *client.Client
	timeout    time.Duration
}

// initialize sends the initialize request to the MCP server.
func (c *mcpConn) initialize(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{
				// Minimal capabilities for tool usage
			},
			ClientInfo: mcp.Implementation{
				Name:    "mcpool",
				Version: "0.1.0",
			},
		},
	}

	if _, err := c.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	return nil
}

// ListTools retrieves the list of available tools from the MCP server.
func (c *mcpConn) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]ToolDefinition, len(result.Tools))
	for i, tool := range result.Tools {
		// Use RawInputSchema if available, otherwise marshal InputSchema
		var schemaBytes []byte
		if len(tool.RawInputSchema) > 0 {
			schemaBytes = tool.RawInputSchema
		} else {
			schemaBytes, err = json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
			}
		}

		tools[i] = ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaBytes,
		}
	}

	return tools, nil
}

// CallTool executes an MCP tool with the given arguments.
func (c *mcpConn) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mcpReq := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      req.Name,
			Arguments: req.Arguments,
		},
	}

	result, err := c.client.CallTool(ctx, mcpReq)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	response := &ToolCallResponse{
		IsError: result.IsError,
		Content: make([]ContentItem, len(result.Content)),
	}

	for i, content := range result.Content {
		item := ContentItem{}

		if textContent, ok := mcp.AsTextContent(content); ok {
			item.Type = textContent.Type
			item.Text = textContent.Text
		} else if imageContent, ok := mcp.AsImageContent(content); ok {
			item.Type = imageContent.Type
			item.Data = imageContent.Data
			item.MimeType = imageContent.MIMEType
		} else {
			// Fallback: marshal to JSON to extract fields
			contentBytes, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content: %w", err)
			}
			var contentMap map[string]interface{}
			if err := json.Unmarshal(contentBytes, &contentMap); err != nil {
				return nil, fmt.Errorf("failed to unmarshal content: %w", err)
			}

			if contentType, ok := contentMap["type"].(string); ok {
				item.Type = contentType
			}
			if text, ok := contentMap["text"].(string); ok {
				item.Text = text
			}
			if data, ok := contentMap["data"].(string); ok {
				item.Data = data
			}
			if mimeType, ok := contentMap["mimeType"].(string); ok {
				item.MimeType = mimeType
			}
		}

		response.Content[i] = item
	}

	return response, nil
}

// Close closes the connection to the MCP server and stops any subprocess.
func (c *mcpConn) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}
	return nil
}
