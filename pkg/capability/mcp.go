// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
)

// MCPCaller abstracts MCP tool execution for the bridge.
type MCPCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// MCPCapability exposes a remote MCP tool as a metered capability. The tool
// name is prefixed with a category so it fits the naming convention, e.g.
// an MCP "search" tool under category "web" becomes "web.search".
type MCPCapability struct {
	contract Contract
	tool     mcp.Tool
	caller   MCPCaller
}

// NewMCPCapability builds a capability backed by an MCP tool definition.
func NewMCPCapability(category string, tool mcp.Tool, caller MCPCaller, nominalCost decimal.Decimal) (*MCPCapability, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("mcp caller is required")
	}

	schema, err := mcpSchema(tool)
	if err != nil {
		return nil, err
	}
	contract := Contract{
		Name:        category + "." + tool.Name,
		Description: tool.Description,
		Schema:      schema,
		NominalCost: nominalCost,
	}
	if err := contract.Validate(); err != nil {
		return nil, err
	}

	return &MCPCapability{contract: contract, tool: tool, caller: caller}, nil
}

func (m *MCPCapability) Contract() Contract { return m.contract }

// Invoke calls the remote tool. MCP-level errors are classified permanent
// (the server rejected the call); transport errors are transient.
func (m *MCPCapability) Invoke(ctx context.Context, args map[string]any) (any, error) {
	result, err := m.caller.CallTool(ctx, m.tool.Name, args)
	if err != nil {
		return nil, Transient(err)
	}
	if result == nil {
		return nil, Transient(errors.New("mcp tool result is nil"))
	}
	if result.IsError {
		return nil, Permanent(fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content)))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func mcpSchema(tool mcp.Tool) (map[string]any, error) {
	if tool.InputSchema.Type == "" {
		return nil, nil
	}
	schema := map[string]any{
		"type": tool.InputSchema.Type,
	}
	if tool.InputSchema.Properties != nil {
		schema["properties"] = tool.InputSchema.Properties
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	return schema, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Capability = (*MCPCapability)(nil)
