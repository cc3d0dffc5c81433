// Package mcp exposes run inspection over the Model Context Protocol so
// AI assistants can query live runs, transcripts and node previews.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/domain/transcript"
	"github.com/runlens/runlens/internal/domain/workflow"
)

// RunReader is the read surface the MCP tools expose. The run service
// implements it.
type RunReader interface {
	Runs() []run.Info
	Run(ctx context.Context, runID string) (run.Info, error)
	Transcript(ctx context.Context, runID string) ([]transcript.Segment, error)
	TranscriptJSON(ctx context.Context, runID string) ([]byte, error)
	NodePreview(runID string, nodeID workflow.NodeID) (*preview.Snapshot, error)
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string // listen address for the SSE transport; empty disables it
	Token   string // bearer token for SSE clients; empty disables auth
	Name    string
	Version string
}

// ServerDeps holds the dependencies the tool handlers read from.
type ServerDeps struct {
	Runs RunReader
}

// Server wraps an MCP server with run inspection tools. The stdio and SSE
// transports share one tool registry.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// Start launches the SSE transport if an address is configured. It returns
// immediately; transport errors are logged.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return nil
	}
	sse := mcpserver.NewSSEServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.Token, sse),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp sse server failed", "error", err)
		}
	}()
	slog.Info("mcp sse server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts down the SSE transport, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ServeStdio runs the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcpserver.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
