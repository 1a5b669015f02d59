// Package mcpserver exposes the corpus over the Model Context Protocol on
// stdio. Every command becomes an MCP prompt; tools cover listing,
// reading, rendering, and searching. Rendering through this server never
// executes shell markers: MCP clients get deterministic output.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/version"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// Server is the promptpack MCP server.
type Server struct {
	mcp      *server.MCPServer
	registry *workspace.Registry
	store    *index.Store // nil falls back to snapshot scans for search
}

// NewServer builds the MCP server and registers all prompts and tools.
// Prompts reflect the corpus at construction time; restart the server to
// pick up new commands.
func NewServer(ctx context.Context, registry *workspace.Registry, store *index.Store) (*Server, error) {
	s := &Server{
		registry: registry,
		store:    store,
		mcp: server.NewMCPServer(
			"promptpack",
			version.Get().Version,
			server.WithToolCapabilities(false),
			server.WithPromptCapabilities(false),
			server.WithLogging(),
		),
	}

	snap, err := registry.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load corpus")
	}

	s.registerPrompts(snap)
	s.registerTools()

	return s, nil
}

// Serve runs the stdio transport until the context is cancelled or the
// transport fails.
func (s *Server) Serve(ctx context.Context) error {
	logger.G(ctx).Info("Starting MCP stdio server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		logger.G(ctx).Info("Context cancelled, shutting down MCP server")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
