package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	rlotel "github.com/runlens/runlens/internal/adapter/otel"
	"github.com/runlens/runlens/internal/adapter/ws"
	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/domain"
	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/preview"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/domain/transcript"
	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/port/archive"
	"github.com/runlens/runlens/internal/port/broadcast"
	"github.com/runlens/runlens/internal/port/cache"
	"github.com/runlens/runlens/internal/port/feed"
	"github.com/runlens/runlens/internal/port/scheduler"
	"github.com/runlens/runlens/internal/resilience"
)

// runState is everything the service tracks for one observed run. The raw
// log is the transcript source; the preview store folds the same events into
// bounded per-node snapshots. An evicted state is a tombstone: status stays
// readable, content is gone.
type runState struct {
	info    run.Info
	log     []event.Event
	store   *PreviewStore
	evicted bool
}

// RunService owns the registry of observed runs. It consumes unordered feed
// batches from any transport, derives run status, and serves transcripts and
// node previews. Runs appear implicitly with their first event and bind to a
// workflow as soon as an event names a registered key.
type RunService struct {
	descriptors *DescriptorService
	hub         broadcast.Broadcaster
	sched       scheduler.Scheduler
	previewCfg  preview.Config
	runsCfg     *config.Runs

	archive archive.Store
	breaker *resilience.Breaker
	cache   cache.Cache
	queue   feed.Queue
	metrics *rlotel.Metrics

	archSem *semaphore.Weighted
	builds  singleflight.Group

	mu   sync.RWMutex
	runs map[string]*runState
	now  func() time.Time
}

// NewRunService creates a RunService. Archive, cache and metrics are
// optional and attached with the Set methods.
func NewRunService(
	descriptors *DescriptorService,
	hub broadcast.Broadcaster,
	sched scheduler.Scheduler,
	previewCfg preview.Config,
	runsCfg *config.Runs,
) *RunService {
	conc := runsCfg.ArchiveConcurrency
	if conc < 1 {
		conc = 1
	}
	return &RunService{
		descriptors: descriptors,
		hub:         hub,
		sched:       sched,
		previewCfg:  previewCfg,
		runsCfg:     runsCfg,
		archSem:     semaphore.NewWeighted(conc),
		runs:        make(map[string]*runState),
		now:         time.Now,
	}
}

// SetArchive enables archival of finished runs. Writes go through the
// breaker so a dead database degrades to logs and metrics instead of
// hammering the pool.
func (s *RunService) SetArchive(store archive.Store, breaker *resilience.Breaker) {
	s.archive = store
	s.breaker = breaker
}

// SetCache enables caching of rendered transcript JSON.
func (s *RunService) SetCache(c cache.Cache) {
	s.cache = c
}

// SetMetrics enables ingest and transcript instrumentation.
func (s *RunService) SetMetrics(m *rlotel.Metrics) {
	s.metrics = m
}

// Ingest folds a feed batch into the run's state: the raw log grows, the
// preview store routes events to node accumulators, and terminal events
// drive the run status. Batches may arrive in any order consistent with
// per-item delta sequencing; nothing here assumes feed order.
func (s *RunService) Ingest(ctx context.Context, runID string, events []event.Event) error {
	if runID == "" {
		return fmt.Errorf("run id is required: %w", domain.ErrValidation)
	}
	if len(events) == 0 {
		return nil
	}
	ctx, span := rlotel.StartIngestSpan(ctx, runID, len(events))
	defer span.End()

	now := s.now()

	s.mu.Lock()
	st := s.runs[runID]
	created := st == nil
	if created {
		st = &runState{info: run.Info{ID: runID, Status: run.StatusRunning, StartedAt: now}}
		s.runs[runID] = st
	}
	if st.evicted {
		s.mu.Unlock()
		return fmt.Errorf("run %q was evicted: %w", runID, domain.ErrGone)
	}
	prev := st.info.Status
	st.log = append(st.log, events...)
	st.info.EventCount = len(st.log)
	st.info.LastEventAt = now
	for _, ev := range events {
		if st.info.Status != run.StatusRunning {
			break
		}
		switch e := ev.(type) {
		case event.Final:
			st.info.Status = run.FinalStatus(e.Status)
		case event.RunError:
			st.info.Status = run.StatusFailed
		}
	}
	toApply := events
	if st.store == nil {
		if idx := s.bindIndex(events); idx != nil {
			st.info.Workflow = idx.Key()
			st.store = s.newStoreLocked(runID, idx)
			// replay everything buffered before the binding
			toApply = st.log
		}
	}
	store := st.store
	info := st.info
	s.mu.Unlock()

	if store != nil {
		routed := store.ApplyEvents(toApply...)
		if s.metrics != nil {
			s.metrics.EventsApplied.Add(ctx, int64(routed))
			s.metrics.EventsUnroutable.Add(ctx, int64(len(toApply)-routed))
		}
	} else if s.metrics != nil {
		s.metrics.EventsUnroutable.Add(ctx, int64(len(events)))
	}

	if created {
		if s.metrics != nil {
			s.metrics.RunsActive.Add(ctx, 1)
		}
		slog.Info("run observed", "run_id", runID, "workflow", info.Workflow)
	}
	if created || info.Status != prev {
		s.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
			RunID:      runID,
			Workflow:   info.Workflow,
			Status:     string(info.Status),
			EventCount: info.EventCount,
		})
	}
	if prev == run.StatusRunning && info.Status.Terminal() {
		s.finishRun(ctx, info)
	}
	return nil
}

// Transcript rebuilds the ordered transcript of a run from its raw feed.
// Runs no longer held in memory are served from the archive.
func (s *RunService) Transcript(ctx context.Context, runID string) ([]transcript.Segment, error) {
	s.mu.RLock()
	st := s.runs[runID]
	var events []event.Event
	evicted := false
	if st != nil {
		evicted = st.evicted
		if !evicted {
			events = make([]event.Event, len(st.log))
			copy(events, st.log)
		}
	}
	s.mu.RUnlock()

	switch {
	case st == nil:
		return s.archivedSegments(ctx, runID, fmt.Errorf("run %q: %w", runID, domain.ErrNotFound))
	case evicted:
		return s.archivedSegments(ctx, runID, fmt.Errorf("transcript for run %q: %w", runID, domain.ErrGone))
	}

	ctx, span := rlotel.StartTranscriptSpan(ctx, runID)
	defer span.End()
	if s.metrics != nil {
		s.metrics.TranscriptBuilds.Add(ctx, 1)
	}
	return transcript.Build(events), nil
}

// TranscriptJSON returns the transcript rendered as JSON. Rendered bytes are
// cached under a key derived from the run id and its event count, so every
// ingested batch naturally invalidates; concurrent builds of the same
// version collapse into one.
func (s *RunService) TranscriptJSON(ctx context.Context, runID string) ([]byte, error) {
	s.mu.RLock()
	version := 0
	live := false
	if st := s.runs[runID]; st != nil && !st.evicted {
		version = st.info.EventCount
		live = true
	}
	s.mu.RUnlock()

	if !live {
		segs, err := s.Transcript(ctx, runID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(segs)
	}

	key := transcriptCacheKey(runID, version)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			if s.metrics != nil {
				s.metrics.TranscriptCacheHits.Add(ctx, 1)
			}
			return data, nil
		}
	}

	v, err, _ := s.builds.Do(key, func() (any, error) {
		segs, err := s.Transcript(ctx, runID)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(segs)
		if err != nil {
			return nil, fmt.Errorf("marshal transcript: %w", err)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, data, s.runsCfg.TranscriptTTL); err != nil {
				slog.Warn("transcript cache write failed", "run_id", runID, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// NodePreview returns the latest flushed snapshot for one graph node.
func (s *RunService) NodePreview(runID string, nodeID workflow.NodeID) (*preview.Snapshot, error) {
	store, err := s.previewStore(runID)
	if err != nil {
		return nil, err
	}
	if _, ok := store.Index().Node(nodeID); !ok {
		return nil, fmt.Errorf("node %q: %w", nodeID, domain.ErrNotFound)
	}
	return store.Snapshot(nodeID), nil
}

// SubscribeNode registers fn to run after each flush that rebuilt the
// node's snapshot. The returned function removes the registration.
func (s *RunService) SubscribeNode(runID string, nodeID workflow.NodeID, fn func()) (func(), error) {
	store, err := s.previewStore(runID)
	if err != nil {
		return nil, err
	}
	if _, ok := store.Index().Node(nodeID); !ok {
		return nil, fmt.Errorf("node %q: %w", nodeID, domain.ErrNotFound)
	}
	return store.Subscribe(nodeID, fn), nil
}

// Nodes returns the graph nodes of the workflow a run is bound to, in
// declaration order.
func (s *RunService) Nodes(runID string) ([]workflow.Node, error) {
	store, err := s.previewStore(runID)
	if err != nil {
		return nil, err
	}
	return store.Index().Nodes(), nil
}

// Runs lists all observed runs, most recent first.
func (s *RunService) Runs() []run.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]run.Info, 0, len(s.runs))
	for _, st := range s.runs {
		out = append(out, st.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Run returns the status record of one run, falling back to the archive for
// runs no longer held in memory.
func (s *RunService) Run(ctx context.Context, runID string) (run.Info, error) {
	s.mu.RLock()
	st, ok := s.runs[runID]
	var info run.Info
	if ok {
		info = st.info
	}
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	if s.archive != nil {
		rec, err := s.archive.GetRun(ctx, runID)
		if err == nil {
			return run.Info{
				ID:          rec.ID,
				Workflow:    rec.Workflow,
				Status:      run.Status(rec.Status),
				StartedAt:   rec.StartedAt,
				LastEventAt: rec.FinishedAt,
				EventCount:  rec.EventCount,
			}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return run.Info{}, fmt.Errorf("archive lookup: %w", err)
		}
	}
	return run.Info{}, fmt.Errorf("run %q: %w", runID, domain.ErrNotFound)
}

// ResetRun clears a run's accumulated state ahead of a feed replay: the log
// empties, the status returns to running, and the preview store marks every
// node so watchers repaint after the next flush. Evicted runs revive and
// rebind on their next batch.
func (s *RunService) ResetRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	st := s.runs[runID]
	if st == nil {
		s.mu.Unlock()
		return fmt.Errorf("run %q: %w", runID, domain.ErrNotFound)
	}
	wasTerminal := st.info.Status.Terminal() && !st.evicted
	st.evicted = false
	st.log = nil
	st.info.EventCount = 0
	st.info.Status = run.StatusRunning
	store := st.store
	info := st.info
	s.mu.Unlock()

	if store != nil {
		store.Reset()
	}
	if wasTerminal && s.metrics != nil {
		s.metrics.RunsActive.Add(ctx, 1)
	}
	s.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
		RunID:    runID,
		Workflow: info.Workflow,
		Status:   string(run.StatusRunning),
	})
	slog.Info("run reset", "run_id", runID)
	return nil
}

// Sweep drops finished runs whose feed has been idle longer than the
// retention window. With an archive configured the memory is freed outright
// and reads fall back to the archive; without one a tombstone keeps the
// status visible while transcript reads report gone. Returns the number of
// runs swept.
func (s *RunService) Sweep() int {
	cutoff := s.now().Add(-s.runsCfg.IdleRetention)
	var stores []*PreviewStore
	n := 0

	s.mu.Lock()
	for id, st := range s.runs {
		if !st.info.Status.Terminal() || st.evicted {
			continue
		}
		if st.info.LastEventAt.After(cutoff) {
			continue
		}
		if st.store != nil {
			stores = append(stores, st.store)
		}
		if s.archive != nil {
			delete(s.runs, id)
		} else {
			st.log = nil
			st.store = nil
			st.evicted = true
		}
		n++
	}
	s.mu.Unlock()

	for _, store := range stores {
		store.Destroy()
	}
	if n > 0 {
		slog.Info("idle runs swept", "count", n)
	}
	return n
}

// --- Internal helpers ---

// bindIndex finds the first event whose workflow key names a registered
// workflow. Runs whose key gets registered later bind on a later batch.
func (s *RunService) bindIndex(events []event.Event) *workflow.Index {
	for _, ev := range events {
		wf := ev.EventMeta().Workflow
		if wf == nil || wf.WorkflowKey == "" {
			continue
		}
		if idx, ok := s.descriptors.Lookup(wf.WorkflowKey); ok {
			return idx
		}
	}
	return nil
}

// newStoreLocked builds the run's preview store and fans each node's flush
// ticks out to watching websocket clients. Callers hold s.mu.
func (s *RunService) newStoreLocked(runID string, idx *workflow.Index) *PreviewStore {
	store := NewPreviewStore(idx, s.sched, s.previewCfg)
	if s.metrics != nil {
		store.SetMetrics(s.metrics)
	}
	for _, nodeID := range idx.NodeIDs() {
		store.Subscribe(nodeID, func() {
			s.hub.BroadcastRunEvent(context.Background(), runID, ws.EventPreviewUpdate, ws.PreviewUpdateEvent{
				RunID:    runID,
				NodeID:   string(nodeID),
				Snapshot: store.Snapshot(nodeID),
			})
		})
	}
	return store
}

// archivedSegments serves transcript reads for runs no longer held in
// memory. fallback is returned when no archive is configured or the archive
// has no record of the run.
func (s *RunService) archivedSegments(ctx context.Context, runID string, fallback error) ([]transcript.Segment, error) {
	if s.archive == nil {
		return nil, fallback
	}
	segs, err := s.archive.LoadSegments(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fallback
		}
		return nil, fmt.Errorf("load archived segments: %w", err)
	}
	return segs, nil
}

// previewStore resolves the live preview store of a run.
func (s *RunService) previewStore(runID string) (*PreviewStore, error) {
	s.mu.RLock()
	st := s.runs[runID]
	var store *PreviewStore
	evicted := false
	if st != nil {
		store = st.store
		evicted = st.evicted
	}
	s.mu.RUnlock()

	switch {
	case st == nil:
		return nil, fmt.Errorf("run %q: %w", runID, domain.ErrNotFound)
	case evicted:
		return nil, fmt.Errorf("preview for run %q: %w", runID, domain.ErrGone)
	case store == nil:
		return nil, fmt.Errorf("run %q is not bound to a workflow: %w", runID, domain.ErrNotFound)
	}
	return store, nil
}

// finishRun runs the terminal-transition side effects. The transcript is
// ready as soon as the feed ends; archival is best effort and asynchronous.
func (s *RunService) finishRun(ctx context.Context, info run.Info) {
	if s.metrics != nil {
		s.metrics.RunsActive.Add(ctx, -1)
	}
	s.hub.BroadcastRunEvent(ctx, info.ID, ws.EventTranscriptReady, ws.TranscriptReadyEvent{RunID: info.ID})
	slog.Info("run finished", "run_id", info.ID, "status", info.Status, "events", info.EventCount)
	if s.archive != nil {
		go s.archiveRun(info.ID)
	}
}

// archiveRun persists a finished run's record and built segments. It runs
// off the ingest path, bounded by the archive semaphore, so a slow or dead
// database never blocks the feed.
func (s *RunService) archiveRun(runID string) {
	ctx := context.Background()
	if err := s.archSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.archSem.Release(1)

	s.mu.RLock()
	st := s.runs[runID]
	if st == nil || st.evicted {
		s.mu.RUnlock()
		return
	}
	info := st.info
	events := make([]event.Event, len(st.log))
	copy(events, st.log)
	s.mu.RUnlock()

	ctx, span := rlotel.StartArchiveSpan(ctx, runID, string(info.Status))
	defer span.End()

	segments := transcript.Build(events)
	rec := &archive.RunRecord{
		ID:           info.ID,
		Workflow:     info.Workflow,
		Status:       string(info.Status),
		StartedAt:    info.StartedAt,
		FinishedAt:   info.LastEventAt,
		EventCount:   info.EventCount,
		SegmentCount: len(segments),
	}
	err := s.breaker.Execute(func() error {
		return s.archive.SaveRun(ctx, rec, segments)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ArchiveFailures.Add(ctx, 1)
		}
		slog.Error("archive write failed", "run_id", runID, "error", err)
		return
	}
	slog.Info("run archived", "run_id", runID, "segments", len(segments))
}

// transcriptCacheKey derives a content-addressed cache key: same run, same
// event count, same bytes.
func transcriptCacheKey(runID string, version int) string {
	sum := blake2b.Sum256([]byte(runID + ":" + strconv.Itoa(version)))
	return "transcript:" + hex.EncodeToString(sum[:16])
}
