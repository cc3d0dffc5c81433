package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "runlens"

// StartIngestSpan starts a span for applying an event batch to a run.
func StartIngestSpan(ctx context.Context, runID string, batchSize int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("batch.size", batchSize),
		),
	)
}

// StartTranscriptSpan starts a span for a full transcript build.
func StartTranscriptSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "transcript",
		trace.WithAttributes(
			attribute.String("run.id", runID),
		),
	)
}

// StartArchiveSpan starts a span for an archive write.
func StartArchiveSpan(ctx context.Context, runID, status string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "archive",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.status", status),
		),
	)
}
