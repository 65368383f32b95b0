package ai

import (
	"context"
	"fmt"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer describes how to reach a tool server declared in configuration
// under the [ai.mcp] section.
type MCPServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// MCPTool describes a tool exposed by a connected server.
type MCPTool struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MCPClient wraps a single stdio MCP server connection.
type MCPClient struct {
	config  MCPServer
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewMCPClient creates a client for the given server; call Connect before use.
func NewMCPClient(config MCPServer) *MCPClient {
	return &MCPClient{config: config}
}

// Connect spawns the server process and performs the MCP handshake.
func (c *MCPClient) Connect(ctx context.Context) error {
	c.client = mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "tsk",
		Version: "1.0.0",
	}, nil)

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	session, err := c.client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("mcp connect to %s: %w", c.config.Name, err)
	}
	c.session = session
	return nil
}

// ListTools returns the tools advertised by the connected server.
func (c *MCPClient) ListTools(ctx context.Context) ([]MCPTool, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcp client not connected")
	}

	var tools []MCPTool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, MCPTool{
			Server:      c.config.Name,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return tools, nil
}

// CallTool invokes a tool and returns the concatenated text content.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("mcp client not connected")
	}

	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp call tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s returned error", name)
	}

	var text string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text, nil
}

// Close tears down the session.
func (c *MCPClient) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
