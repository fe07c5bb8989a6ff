package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	lctools "github.com/tmc/langchaingo/tools"

	"github.com/mikeboe/aegis/pkg/agent"
)

// ToolInput is the single-argument schema shared by the bridged tools;
// each agent tool takes one free-text input.
type ToolInput struct {
	Input string `json:"input" jsonschema:"the tool input: a question for the report tool, a SQL query for the database tool, or a search query for web search"`
}

// ToolOutput carries the tool's text result.
type ToolOutput struct {
	Result string `json:"result"`
}

// NewMCPHandler exposes every tool in the toolbox over the Model Context
// Protocol, so external MCP clients can use the same retrieval, SQL and
// web search capabilities the agent itself reasons with.
func NewMCPHandler(toolbox *agent.Toolbox, version string) http.Handler {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "aegis",
			Version: version,
		},
		&mcp.ServerOptions{},
	)

	for _, tool := range toolbox.All() {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
		}, makeToolHandler(tool))
	}

	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)
}

func makeToolHandler(tool lctools.Tool) func(context.Context, *mcp.CallToolRequest, ToolInput) (*mcp.CallToolResult, ToolOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ToolInput) (*mcp.CallToolResult, ToolOutput, error) {
		slog.Info("MCP tool call", "tool", tool.Name())

		out, err := tool.Call(ctx, input.Input)
		if err != nil {
			slog.Warn("MCP tool call failed", "tool", tool.Name(), "error", err)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("Tool %s failed: %v", tool.Name(), err)},
				},
			}, ToolOutput{}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: out},
			},
		}, ToolOutput{Result: out}, nil
	}
}
