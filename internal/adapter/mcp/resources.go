package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"runlens://runs",
			"Run List",
			mcplib.WithResourceDescription("All workflow runs currently observed, most recent first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRunsResource,
	)
}

func (s *Server) handleRunsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Runs == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"run reader not configured"}`,
			},
		}, nil
	}
	runs := s.deps.Runs.Runs()
	data, err := json.Marshal(runs)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
