// Package broadcast defines the port for pushing live run updates to
// connected clients.
package broadcast

import "context"

// Broadcaster fans typed events out to connected clients. Payloads are
// marshaled by the implementation; delivery is best effort and clients
// that fail a write are dropped.
type Broadcaster interface {
	// BroadcastEvent sends an event to every connected client.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// BroadcastRunEvent sends an event only to the clients watching
	// the given run.
	BroadcastRunEvent(ctx context.Context, runID, eventType string, payload any)
}
