package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/logger"
	"github.com/runlens/runlens/internal/port/feed"
)

// SetQueue attaches the run event feed the service consumes. Deployments
// that ingest over HTTP only leave it unset.
func (s *RunService) SetQueue(q feed.Queue) {
	s.queue = q
}

// StartSubscribers subscribes to the run feed subjects. Returns cancel
// functions for each subscription.
func (s *RunService) StartSubscribers(ctx context.Context) ([]func(), error) {
	if s.queue == nil {
		return nil, errors.New("no feed queue configured")
	}
	var cancels []func()

	// Progress events, one subject per run
	cancel, err := s.queue.Subscribe(ctx, feed.SubjectRunEvents+".>", func(msgCtx context.Context, subject string, data []byte) error {
		runID := feed.RunIDFromSubject(subject)
		if runID == "" {
			return fmt.Errorf("no run id in subject %s", subject)
		}
		events, err := event.DecodeBatch(data)
		if err != nil {
			// a malformed batch must not kill the subscription
			slog.Warn("dropping malformed event batch", "subject", subject, "error", err)
			return nil
		}
		return s.Ingest(logger.WithRunID(msgCtx, runID), runID, events)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe run events: %w", err)
	}
	cancels = append(cancels, cancel)

	// Replay markers: the producer is about to resend a feed from the start
	cancel, err = s.queue.Subscribe(ctx, feed.SubjectRunControlReset, func(msgCtx context.Context, _ string, data []byte) error {
		var p feed.ResetPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal reset: %w", err)
		}
		// a reset for a run we never saw is fine; the replay will create it
		if err := s.ResetRun(msgCtx, p.RunID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		cancelAll(cancels)
		return nil, fmt.Errorf("subscribe run control: %w", err)
	}
	cancels = append(cancels, cancel)

	return cancels, nil
}

func cancelAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
