// Package mcptools exposes scenario operations as MCP tools over stdio, so an
// assistant can inspect and edit one user's scenario.
package mcptools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

const serverName = "proptech-copilot"

// NewServer registers every tool for userID.
func NewServer(svc *scenario.Service, userID, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server, EffectiveViewTool(), EffectiveViewHandler(svc, userID))
	mcp.AddTool(server, CloseFloorsTool(), CloseFloorsHandler(svc, userID))
	mcp.AddTool(server, OpenFloorsTool(), OpenFloorsHandler(svc, userID))
	mcp.AddTool(server, ResetPropertyTool(), ResetPropertyHandler(svc, userID))
	mcp.AddTool(server, ResetAllTool(), ResetAllHandler(svc, userID))
	mcp.AddTool(server, ChangeLogTool(), ChangeLogHandler(svc, userID))
	mcp.AddTool(server, RecommendationsTool(), RecommendationsHandler(svc, userID))

	return server
}

// Run serves tools on stdin/stdout until ctx is cancelled or the client
// disconnects.
func Run(ctx context.Context, svc *scenario.Service, userID, version string) error {
	slog.Info("serving MCP over stdio", "user_id", userID)
	if err := NewServer(svc, userID, version).Run(ctx, &mcp.StdioTransport{}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running MCP server: %w", err)
	}
	return nil
}
