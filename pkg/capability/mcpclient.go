// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
)

const mcpRequestTimeout = 10 * time.Second

// MCPClient wraps an mcp-go client connection. Retry policy lives in the
// gateway, so each call here is a single attempt with a timeout.
type MCPClient struct {
	inner   client.MCPClient
	timeout time.Duration
}

// ConnectStdio launches an MCP server subprocess and initializes the
// connection.
func ConnectStdio(ctx context.Context, command string, args ...string) (*MCPClient, error) {
	stdioClient, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %q: %w", command, err)
	}
	if err := stdioClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, mcpRequestTimeout)
	defer cancel()
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "praxis",
		Version: "0.1.0",
	}
	if _, err := stdioClient.Initialize(initCtx, initRequest); err != nil {
		_ = stdioClient.Close()
		return nil, fmt.Errorf("initialize mcp connection: %w", err)
	}

	return &MCPClient{inner: stdioClient, timeout: mcpRequestTimeout}, nil
}

// ListTools retrieves the tool definitions offered by the server.
func (c *MCPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}
	return resp.Tools, nil
}

// CallTool executes one tool on the server.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.inner.CallTool(ctx, req)
}

// Close terminates the connection and the server subprocess.
func (c *MCPClient) Close() error {
	return c.inner.Close()
}

var _ MCPCaller = (*MCPClient)(nil)

// RegisterMCPServer imports every tool the server offers into the registry
// under the given category. It returns the registered capability names.
func RegisterMCPServer(ctx context.Context, reg *Registry, category string, c *MCPClient, nominalCost decimal.Decimal) ([]string, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, tool := range tools {
		cp, err := NewMCPCapability(category, tool, c, nominalCost)
		if err != nil {
			return names, fmt.Errorf("import mcp tool %q: %w", tool.Name, err)
		}
		if err := reg.Register(cp); err != nil {
			return names, err
		}
		names = append(names, cp.Contract().Name)
	}
	return names, nil
}
