package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "runlens"

// Metrics holds all RunLens metric instruments.
type Metrics struct {
	EventsApplied       metric.Int64Counter
	EventsUnroutable    metric.Int64Counter
	FlushBatches        metric.Int64Counter
	FlushDuration       metric.Float64Histogram
	TranscriptBuilds    metric.Int64Counter
	TranscriptCacheHits metric.Int64Counter
	ArchiveFailures     metric.Int64Counter
	RunsActive          metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EventsApplied, err = meter.Int64Counter("runlens.events.applied",
		metric.WithDescription("Progress events routed to a node accumulator"))
	if err != nil {
		return nil, err
	}

	m.EventsUnroutable, err = meter.Int64Counter("runlens.events.unroutable",
		metric.WithDescription("Progress events dropped for lack of a resolvable node"))
	if err != nil {
		return nil, err
	}

	m.FlushBatches, err = meter.Int64Counter("runlens.flush.batches",
		metric.WithDescription("Preview flush batches executed"))
	if err != nil {
		return nil, err
	}

	m.FlushDuration, err = meter.Float64Histogram("runlens.flush.duration_seconds",
		metric.WithDescription("Preview flush duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TranscriptBuilds, err = meter.Int64Counter("runlens.transcript.builds",
		metric.WithDescription("Full transcript rebuilds from the event log"))
	if err != nil {
		return nil, err
	}

	m.TranscriptCacheHits, err = meter.Int64Counter("runlens.transcript.cache_hits",
		metric.WithDescription("Transcript requests served from cache"))
	if err != nil {
		return nil, err
	}

	m.ArchiveFailures, err = meter.Int64Counter("runlens.archive.failures",
		metric.WithDescription("Failed archive writes"))
	if err != nil {
		return nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter("runlens.runs.active",
		metric.WithDescription("Runs currently held in memory"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
