package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Anansitrading/kijko/internal/ingest"

// Metrics instruments pipeline runs. Failed instrument creation leaves the
// instrument nil and recording becomes a no-op.
type Metrics struct {
	phaseDuration metric.Float64Histogram
	runDuration   metric.Float64Histogram
	filesParsed   metric.Int64Counter
	chunksIndexed metric.Int64Counter
	runs          metric.Int64Counter
}

// NewMetrics creates pipeline metrics on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.phaseDuration, _ = meter.Float64Histogram(
		"kijko.ingest.phase_duration_seconds",
		metric.WithDescription("Duration of each pipeline phase"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600),
	)
	m.runDuration, _ = meter.Float64Histogram(
		"kijko.ingest.run_duration_seconds",
		metric.WithDescription("Total duration of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	m.filesParsed, _ = meter.Int64Counter(
		"kijko.ingest.files_parsed_total",
		metric.WithDescription("Files accepted by the parsing phase"),
		metric.WithUnit("{file}"),
	)
	m.chunksIndexed, _ = meter.Int64Counter(
		"kijko.ingest.chunks_indexed_total",
		metric.WithDescription("Chunks upserted into the vector store"),
		metric.WithUnit("{chunk}"),
	)
	m.runs, _ = meter.Int64Counter(
		"kijko.ingest.runs_total",
		metric.WithDescription("Ingestion runs by terminal status"),
		metric.WithUnit("{run}"),
	)
	return m
}

// RecordPhase records one completed phase.
func (m *Metrics) RecordPhase(ctx context.Context, phase Phase, d time.Duration) {
	if m.phaseDuration != nil {
		m.phaseDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("phase", string(phase)),
		))
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, status Status, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	if m.runDuration != nil {
		m.runDuration.Record(ctx, d.Seconds(), attrs)
	}
	if m.runs != nil {
		m.runs.Add(ctx, 1, attrs)
	}
}

// AddFiles counts parsed files.
func (m *Metrics) AddFiles(ctx context.Context, n int) {
	if m.filesParsed != nil {
		m.filesParsed.Add(ctx, int64(n))
	}
}

// AddChunks counts indexed chunks.
func (m *Metrics) AddChunks(ctx context.Context, n int) {
	if m.chunksIndexed != nil {
		m.chunksIndexed.Add(ctx, int64(n))
	}
}
