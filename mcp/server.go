package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lukman83/kidkazz-catalog/internal/logging"
	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
)

const (
	serverName    = "kidkazz-catalog"
	serverVersion = "1.0.0"
)

// Server exposes the catalog pipeline as MCP tools.
type Server struct {
	pipeline        *pipeline.Pipeline
	defaultPlatform string
	logger          *slog.Logger
}

func New(p *pipeline.Pipeline, defaultPlatform string, logger *slog.Logger) *Server {
	if defaultPlatform == "" {
		defaultPlatform = "wildberries"
	}
	return &Server{
		pipeline:        p,
		defaultPlatform: defaultPlatform,
		logger:          logging.NewComponentLogger(logger, "mcp"),
	}
}

func (s *Server) mcpServer() *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	s.registerTools(srv)
	return srv
}

// Serve starts the MCP stdio server with all tools registered.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer())
}
