// Package service implements business logic on top of ports.
package service

import (
	"context"
	"sync"
	"time"

	rlotel "github.com/runlens/runlens/internal/adapter/otel"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/port/scheduler"
)

// PreviewStore routes one run's event feed to per-node accumulators and
// surfaces bounded snapshots to subscribers in batched, deduplicated ticks.
//
// Snapshots are replaced wholesale and never mutated, so callers may compare
// them by reference. Subscriber callbacks carry no payload; listeners pull
// the node's snapshot afterwards. Callbacks run outside the store's lock.
type PreviewStore struct {
	index   *workflow.Index
	sched   scheduler.Scheduler
	cfg     preview.Config
	now     func() time.Time
	metrics *rlotel.Metrics

	mu           sync.RWMutex
	accumulators map[workflow.NodeID]*preview.Accumulator
	snapshots    map[workflow.NodeID]*preview.Snapshot
	dirty        map[workflow.NodeID]struct{}
	listeners    map[workflow.NodeID]map[int]func()
	nextListener int
	flushPending bool
	flushHandle  scheduler.Handle
	lastEvent    time.Time
	destroyed    bool
}

// NewPreviewStore returns a store that routes a run's feed through the given
// node index. The index is shared and never mutated, so one index built per
// workflow serves every run of that workflow. A nil scheduler runs flushes
// synchronously.
func NewPreviewStore(idx *workflow.Index, sched scheduler.Scheduler, cfg preview.Config) *PreviewStore {
	if sched == nil {
		sched = scheduler.Immediate{}
	}
	return &PreviewStore{
		index:        idx,
		sched:        sched,
		cfg:          cfg.Clamp(),
		now:          time.Now,
		accumulators: make(map[workflow.NodeID]*preview.Accumulator),
		snapshots:    make(map[workflow.NodeID]*preview.Snapshot),
		dirty:        make(map[workflow.NodeID]struct{}),
		listeners:    make(map[workflow.NodeID]map[int]func()),
	}
}

// Index returns the immutable node index the store routes events with.
func (s *PreviewStore) Index() *workflow.Index { return s.index }

// SetMetrics enables flush instrumentation.
func (s *PreviewStore) SetMetrics(m *rlotel.Metrics) { s.metrics = m }

// LastEvent reports when the store last accepted a resolvable event.
func (s *PreviewStore) LastEvent() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

// ApplyEvents folds a batch into the per-node accumulators and reports how
// many events resolved to a graph node. Events that resolve to no node are
// dropped; that is expected traffic, not an error. One flush is scheduled
// per burst regardless of batch count.
func (s *PreviewStore) ApplyEvents(events ...event.Event) int {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return 0
	}
	routed := 0
	changed := false
	for _, ev := range events {
		nodeID, ok := s.index.Resolve(ev.EventMeta().Workflow)
		if !ok {
			continue
		}
		routed++
		acc := s.accumulators[nodeID]
		if acc == nil {
			acc = preview.New(s.now)
			s.accumulators[nodeID] = acc
		}
		acc.Apply(ev, s.cfg)
		if acc.Dirty() {
			s.dirty[nodeID] = struct{}{}
			s.lastEvent = s.now()
			changed = true
		}
	}
	need := changed && !s.flushPending
	if need {
		s.flushPending = true
	}
	s.mu.Unlock()

	if need {
		s.armFlush()
	}
	return routed
}

// Snapshot returns the last flushed snapshot for a node, or the shared
// empty snapshot when none has been built.
func (s *PreviewStore) Snapshot(nodeID workflow.NodeID) *preview.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.snapshots[nodeID]; ok {
		return snap
	}
	return preview.Empty
}

// Subscribe registers fn to run after each flush that rebuilt nodeID's
// snapshot. The returned function removes the registration; calling it
// more than once is harmless.
func (s *PreviewStore) Subscribe(nodeID workflow.NodeID, fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || fn == nil {
		return func() {}
	}
	id := s.nextListener
	s.nextListener++
	set := s.listeners[nodeID]
	if set == nil {
		set = make(map[int]func())
		s.listeners[nodeID] = set
	}
	set[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destroyed {
			return
		}
		if set := s.listeners[nodeID]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(s.listeners, nodeID)
			}
		}
	}
}

// Reset clears all accumulated state and marks every node in the index
// dirty so subscribers re-pull after the next flush. Used when a feed is
// replayed from the start.
func (s *PreviewStore) Reset() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.accumulators = make(map[workflow.NodeID]*preview.Accumulator)
	s.snapshots = make(map[workflow.NodeID]*preview.Snapshot)
	for _, id := range s.index.NodeIDs() {
		s.dirty[id] = struct{}{}
	}
	need := !s.flushPending
	if need {
		s.flushPending = true
	}
	s.mu.Unlock()

	if need {
		s.armFlush()
	}
}

// Destroy cancels any pending flush and drops all state. The store is
// unusable afterwards: Snapshot returns the empty snapshot and Subscribe
// is a no-op.
func (s *PreviewStore) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	h := s.flushHandle
	s.flushHandle = nil
	s.flushPending = false
	s.accumulators = nil
	s.snapshots = nil
	s.dirty = nil
	s.listeners = nil
	s.mu.Unlock()

	if h != nil {
		s.sched.Cancel(h)
	}
}

// armFlush schedules one flush. Called without the lock held: a synchronous
// scheduler runs the flush, and the flush takes the lock itself.
func (s *PreviewStore) armFlush() {
	h := s.sched.Schedule(s.flush)
	s.mu.Lock()
	if s.flushPending {
		s.flushHandle = h
	}
	s.mu.Unlock()
}

// flush rebuilds snapshots for dirty nodes whose accumulator actually
// changed, then notifies their listeners. A node can be marked dirty with a
// clean accumulator after a flush raced a redundant marking; those are
// skipped without notification.
func (s *PreviewStore) flush() {
	start := time.Now()
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.flushPending = false
	s.flushHandle = nil
	var notify []func()
	for nodeID := range s.dirty {
		delete(s.dirty, nodeID)
		acc := s.accumulators[nodeID]
		if acc == nil {
			// reset marked this node; its state is gone
			delete(s.snapshots, nodeID)
		} else {
			if !acc.Dirty() {
				continue
			}
			s.snapshots[nodeID] = acc.Build(s.cfg)
			acc.ClearDirty()
		}
		for _, fn := range s.listeners[nodeID] {
			notify = append(notify, fn)
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		ctx := context.Background()
		s.metrics.FlushBatches.Add(ctx, 1)
		s.metrics.FlushDuration.Record(ctx, time.Since(start).Seconds())
	}
	for _, fn := range notify {
		fn()
	}
}
