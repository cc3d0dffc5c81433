package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/runlens/runlens/internal/domain/preview"
)

// Event type constants for WebSocket messages.
const (
	EventRunStatus       = "run.status"
	EventPreviewUpdate   = "preview.update"
	EventTranscriptReady = "transcript.ready"
)

// RunStatusEvent is broadcast when a run starts, finishes, or fails.
type RunStatusEvent struct {
	RunID      string `json:"run_id"`
	Workflow   string `json:"workflow,omitempty"`
	Status     string `json:"status"`
	EventCount int    `json:"event_count"`
}

// PreviewUpdateEvent carries a node's fresh preview snapshot to clients
// watching the run. One event is sent per affected node per flush tick.
type PreviewUpdateEvent struct {
	RunID    string            `json:"run_id"`
	NodeID   string            `json:"node_id"`
	Snapshot *preview.Snapshot `json:"snapshot"`
}

// TranscriptReadyEvent tells watchers the run reached a terminal state
// and its complete transcript can be fetched.
type TranscriptReadyEvent struct {
	RunID string `json:"run_id"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// BroadcastRunEvent marshals a typed event and sends it only to the
// clients watching the given run.
func (h *Hub) BroadcastRunEvent(ctx context.Context, runID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastRun(ctx, runID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
