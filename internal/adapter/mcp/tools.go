package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/export"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listRunsTool(),
		s.getRunStatusTool(),
		s.getRunTranscriptTool(),
		s.getNodePreviewTool(),
	)
}

func (s *Server) listRunsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_runs",
		mcplib.WithDescription("List all workflow runs currently observed, most recent first"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRuns,
	}
}

func (s *Server) getRunStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run_status",
		mcplib.WithDescription("Get the status of a workflow run by run ID"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The run ID to check"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRunStatus,
	}
}

func (s *Server) getRunTranscriptTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run_transcript",
		mcplib.WithDescription("Get the complete ordered transcript of a workflow run"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The run ID to read"),
		),
		mcplib.WithString("format",
			mcplib.Enum("json", "markdown"),
			mcplib.Description("Transcript rendering, defaults to json"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRunTranscript,
	}
}

func (s *Server) getNodePreviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_node_preview",
		mcplib.WithDescription("Get the live preview of one workflow graph node in a run"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The run ID to read"),
		),
		mcplib.WithString("node_id",
			mcplib.Required(),
			mcplib.Description("The graph node ID, as listed by the run's node listing"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetNodePreview,
	}
}

func (s *Server) handleListRuns(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	runs := s.deps.Runs.Runs()
	data, err := json.Marshal(runs)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal runs", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetRunStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	runID, ok := stringArg(req, "run_id")
	if !ok {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	info, err := s.deps.Runs.Run(ctx, runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get run %s", runID), err,
		), nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal run", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetRunTranscript(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	runID, ok := stringArg(req, "run_id")
	if !ok {
		return mcplib.NewToolResultError("run_id is required"), nil
	}

	if format, _ := stringArg(req, "format"); format == "markdown" {
		segs, err := s.deps.Runs.Transcript(ctx, runID)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr(
				fmt.Sprintf("failed to build transcript for run %s", runID), err,
			), nil
		}
		return mcplib.NewToolResultText(export.Markdown(segs)), nil
	}

	data, err := s.deps.Runs.TranscriptJSON(ctx, runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to build transcript for run %s", runID), err,
		), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetNodePreview(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	runID, ok := stringArg(req, "run_id")
	if !ok {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	nodeID, ok := stringArg(req, "node_id")
	if !ok {
		return mcplib.NewToolResultError("node_id is required"), nil
	}
	snap, err := s.deps.Runs.NodePreview(runID, workflow.NodeID(nodeID))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get preview for node %s of run %s", nodeID, runID), err,
		), nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal preview", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// stringArg extracts a non-empty string argument from a tool request.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, ok := req.GetArguments()[name].(string)
	return v, ok && v != ""
}

// toolResultJSON wraps a JSON payload in a text content result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
