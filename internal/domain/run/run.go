// Package run defines the identity and status of one observed workflow run.
package run

import "time"

// Status represents the lifecycle state of a run as derived from its feed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the run's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FinalStatus maps the status string of a feed's final event to a terminal
// run status. Producers that omit the field report a clean finish.
func FinalStatus(s string) Status {
	switch s {
	case "failed", "error", "errored", "cancelled":
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// Info describes one observed run. Runs are created implicitly by the first
// event of their feed; Workflow stays empty until an event carries a
// registered workflow key.
type Info struct {
	ID          string    `json:"id"`
	Workflow    string    `json:"workflow,omitempty"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	LastEventAt time.Time `json:"last_event_at"`
	EventCount  int       `json:"event_count"`
}
