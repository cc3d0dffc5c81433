package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log records during shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// deferredRecord pairs a record with the handler that must process it,
// so attrs bound via WithAttrs survive the handoff to a drain worker.
type deferredRecord struct {
	h   slog.Handler
	rec slog.Record
}

// AsyncHandler decouples log emission from encoding: Handle enqueues
// onto a bounded queue and drain goroutines do the writing. When the
// queue is full the record is dropped and counted; logging never blocks
// the caller.
type AsyncHandler struct {
	inner slog.Handler

	queue   chan deferredRecord
	done    *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity and
// starts workers drain goroutines.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan deferredRecord, capacity),
		done:    &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	h.done.Add(workers)
	for range workers {
		go h.drain()
	}
	return h
}

func (h *AsyncHandler) drain() {
	defer h.done.Done()
	for d := range h.queue {
		_ = d.h.Handle(context.Background(), d.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues a clone of the record (slog may reuse the record's
// backing storage once Handle returns) together with this handler's
// inner, or drops it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- deferredRecord{h: h.inner, rec: rec.Clone()}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler whose records carry attrs. The queue,
// drain workers and drop counter stay shared.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		queue:   h.queue,
		done:    h.done,
		dropped: h.dropped,
	}
}

// WithGroup derives a handler opening a group, sharing the queue like
// WithAttrs.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		queue:   h.queue,
		done:    h.done,
		dropped: h.dropped,
	}
}

// DroppedCount reports how many records were discarded on queue overflow.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and blocks until the queue is drained.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.done.Wait()
}
