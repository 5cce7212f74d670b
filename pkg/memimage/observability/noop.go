package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordEventApply does nothing.
func (NoopMetrics) RecordEventApply(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordReplayRun does nothing.
func (NoopMetrics) RecordReplayRun(_ context.Context, _ bool, _ time.Duration) {}

// RecordTransactionSave does nothing.
func (NoopMetrics) RecordTransactionSave(_ context.Context, _ bool, _ time.Duration, _ int) {}

// RecordSnapshotSize does nothing.
func (NoopMetrics) RecordSnapshotSize(_ context.Context, _ int64) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartReplaySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartReplaySpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartEventSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEventSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartTransactionSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartTransactionSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
