package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/feed"
	"github.com/runlens/runlens/internal/port/scheduler"
)

var _ feed.Queue = (*mockQueue)(nil)

// mockQueue records subscriptions and lets tests push messages by hand.
type mockQueue struct {
	mu       sync.Mutex
	handlers map[string]feed.Handler
	cancels  int
}

func (m *mockQueue) Publish(context.Context, string, []byte) error { return nil }

func (m *mockQueue) Subscribe(_ context.Context, subject string, h feed.Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = map[string]feed.Handler{}
	}
	m.handlers[subject] = h
	return func() {
		m.mu.Lock()
		m.cancels++
		m.mu.Unlock()
	}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) deliver(t *testing.T, pattern, subject string, data []byte) error {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", pattern)
	}
	return h(context.Background(), subject, data)
}

func TestRunService_FeedSubscribers(t *testing.T) {
	svc, _ := newTestRunService(t)
	q := &mockQueue{}
	svc.SetQueue(q)
	ctx := context.Background()

	cancels, err := svc.StartSubscribers(ctx)
	if err != nil {
		t.Fatalf("StartSubscribers: %v", err)
	}
	if len(cancels) != 2 {
		t.Fatalf("cancels = %d, want one per subject", len(cancels))
	}

	batch := strings.Join([]string{
		`{"kind":"output_item.added","response_id":"resp-1","item_id":"m1","item_type":"message"}`,
		`{"kind":"message.delta","response_id":"resp-1","item_id":"m1","delta":"from nats"}`,
	}, "\n")
	if err := q.deliver(t, feed.SubjectRunEvents+".>", feed.EventSubject("r1"), []byte(batch)); err != nil {
		t.Fatalf("deliver events: %v", err)
	}

	segs, err := svc.Transcript(ctx, "r1")
	if err != nil || len(segs) != 1 || segs[0].Items[0].Text != "from nats" {
		t.Fatalf("transcript after feed = %+v, %v", segs, err)
	}

	// malformed batches are dropped, not fatal to the subscription
	if err := q.deliver(t, feed.SubjectRunEvents+".>", feed.EventSubject("r1"), []byte(`{"kind":`)); err != nil {
		t.Errorf("malformed batch err = %v, want swallowed", err)
	}
	info, _ := svc.Run(ctx, "r1")
	if info.EventCount != 2 {
		t.Errorf("event count = %d, want unchanged after malformed batch", info.EventCount)
	}

	// a subject with no run id is a real error
	if err := q.deliver(t, feed.SubjectRunEvents+".>", "runs.events", []byte("[]")); err == nil {
		t.Error("subject without run id must error")
	}

	// reset clears the run for replay
	if err := q.deliver(t, feed.SubjectRunControlReset, feed.SubjectRunControlReset, []byte(`{"run_id":"r1"}`)); err != nil {
		t.Fatalf("deliver reset: %v", err)
	}
	info, _ = svc.Run(ctx, "r1")
	if info.Status != run.StatusRunning || info.EventCount != 0 {
		t.Errorf("info after reset = %+v, want running with zero events", info)
	}

	// resets for unknown runs are tolerated
	if err := q.deliver(t, feed.SubjectRunControlReset, feed.SubjectRunControlReset, []byte(`{"run_id":"ghost"}`)); err != nil {
		t.Errorf("unknown reset err = %v, want nil", err)
	}
	// malformed reset payloads are not
	if err := q.deliver(t, feed.SubjectRunControlReset, feed.SubjectRunControlReset, []byte(`{`)); err == nil {
		t.Error("malformed reset must error")
	}

	for _, cancel := range cancels {
		cancel()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancels != 2 {
		t.Errorf("cancelled = %d, want 2", q.cancels)
	}
}

func TestRunService_StartSubscribersWithoutQueue(t *testing.T) {
	descs := NewDescriptorService()
	svc := NewRunService(descs, &mockHub{}, scheduler.Immediate{}, preview.DefaultConfig(), testRunsCfg())
	if _, err := svc.StartSubscribers(context.Background()); err == nil {
		t.Error("StartSubscribers without a queue must error")
	}
}
