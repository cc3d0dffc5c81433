// Package feed defines the port (interface) for the run event feed.
package feed

import (
	"context"
	"strings"
)

// Handler processes a message received from the feed.
// The context carries request-scoped values such as the run ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to feed messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Wildcard subjects are supported. The returned function cancels
	// the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the feed connection immediately.
	Close() error

	// IsConnected reports whether the feed is currently connected.
	IsConnected() bool
}

// Subject constants for the NATS subjects RunLens consumes and publishes.
const (
	SubjectRunEvents       = "runs.events"        // runs.events.{run_id}: progress events from workers
	SubjectRunControlReset = "runs.control.reset" // a producer is about to replay a run's feed from the start

	// StreamName and StreamSubjects define the JetStream stream that
	// retains the feed for replay and late consumers.
	StreamName     = "RUNLENS"
	StreamSubjects = "runs.>"
)

// EventSubject returns the per-run event subject.
func EventSubject(runID string) string {
	return SubjectRunEvents + "." + runID
}

// RunIDFromSubject extracts the run ID from a runs.events.* subject.
// Returns "" for any other subject shape.
func RunIDFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, SubjectRunEvents+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return ""
	}
	return rest
}
