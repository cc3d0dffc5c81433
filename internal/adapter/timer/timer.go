// Package timer implements the scheduler port with a one-shot timer, the
// server-side stand-in for a frame-aligned UI scheduler.
package timer

import (
	"time"

	"github.com/runlens/runlens/internal/port/scheduler"
)

// DefaultDelay is the flush coalescing window.
const DefaultDelay = 40 * time.Millisecond

// Scheduler runs callbacks after a fixed coalescing delay.
type Scheduler struct {
	delay time.Duration
}

// New creates a timer scheduler. Non-positive delays fall back to
// DefaultDelay.
func New(delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Scheduler{delay: delay}
}

// Schedule runs fn once after the coalescing delay.
func (s *Scheduler) Schedule(fn func()) scheduler.Handle {
	return time.AfterFunc(s.delay, fn)
}

// Cancel stops a pending callback if it has not fired yet.
func (s *Scheduler) Cancel(h scheduler.Handle) {
	if t, ok := h.(*time.Timer); ok {
		t.Stop()
	}
}
