// Package mcpserver exposes the dispatcher as a Model Context Protocol server.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/poiesic/searchgate/dispatch"
)

// Invoker runs named operations.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) dispatch.Response
	Tools() []dispatch.ToolInfo
}

// New creates an MCP server advertising every operation of invoker.
func New(invoker Invoker, version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	server := mcp.NewServer(&mcp.Implementation{Name: "searchgate", Version: version}, nil)
	for _, info := range invoker.Tools() {
		schema := info.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		server.AddTool(&mcp.Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: schema,
		}, handler(invoker, info.Name, logger))
	}
	return server
}

func handler(invoker Invoker, name string, logger *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				logger.Warn("undecodable tool arguments", "tool", name, "err", err)
				return toResult(dispatch.ErrorResponse(dispatch.ErrorKindInvalidArguments, "arguments must be a JSON object")), nil
			}
		}
		return toResult(invoker.Invoke(ctx, name, args)), nil
	}
}

func toResult(resp dispatch.Response) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(resp.Content))
	for _, c := range resp.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{Content: content, IsError: resp.IsError}
}

// ServeStdio runs the server over stdin and stdout until ctx is cancelled or
// the client disconnects.
func ServeStdio(ctx context.Context, invoker Invoker, version string, logger *slog.Logger) error {
	return New(invoker, version, logger).Run(ctx, &mcp.StdioTransport{})
}
