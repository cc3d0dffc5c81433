// Package archive defines the port (interface) for durable storage of
// finished runs.
package archive

import (
	"context"
	"time"

	"github.com/runlens/runlens/internal/domain/transcript"
)

// RunRecord is the durable summary of an archived run.
type RunRecord struct {
	ID           string    `json:"id"`
	Workflow     string    `json:"workflow,omitempty"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	EventCount   int       `json:"event_count"`
	SegmentCount int       `json:"segment_count"`
}

// Store is the port interface for the run archive.
// Lookups for runs that were never archived return an error wrapping
// domain.ErrNotFound.
type Store interface {
	// SaveRun persists the run summary and its full transcript.
	// Saving the same run again replaces the previous archive.
	SaveRun(ctx context.Context, rec *RunRecord, segments []transcript.Segment) error

	// GetRun returns the archived summary for a run.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns archived run summaries, most recent first.
	// A non-positive limit applies a server-side default.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// LoadSegments returns the archived transcript for a run.
	LoadSegments(ctx context.Context, runID string) ([]transcript.Segment, error)
}
