package feed

// ResetPayload is published on runs.control.reset before a producer
// replays a run's feed from the start. Consumers drop their accumulated
// state for the run so the replay does not double-count.
type ResetPayload struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason,omitempty"`
}
