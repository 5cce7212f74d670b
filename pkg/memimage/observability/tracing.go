package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the memimage tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("memimage")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartReplaySpan starts a span for a full event-log replay.
	// Returns the context with span and the span itself.
	StartReplaySpan(ctx context.Context, imageID, runID string) (context.Context, trace.Span)

	// StartEventSpan starts a span for applying one event.
	// The event span should be a child of the replay span.
	StartEventSpan(ctx context.Context, kind string) (context.Context, trace.Span)

	// StartTransactionSpan starts a span for a transaction save.
	StartTransactionSpan(ctx context.Context, imageID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartReplaySpan starts a span for a full event-log replay.
func (m *otelSpanManager) StartReplaySpan(ctx context.Context, imageID, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "memimage.replay",
		trace.WithAttributes(
			attribute.String("image.id", imageID),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartEventSpan starts a span for applying one event.
func (m *otelSpanManager) StartEventSpan(ctx context.Context, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "memimage.event."+kind,
		trace.WithAttributes(
			attribute.String("event.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTransactionSpan starts a span for a transaction save.
func (m *otelSpanManager) StartTransactionSpan(ctx context.Context, imageID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "memimage.transaction.save",
		trace.WithAttributes(
			attribute.String("image.id", imageID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer, for callers
// that don't need the interface.

// StartReplaySpan starts a span for a full event-log replay, using the
// global OTel tracer.
func StartReplaySpan(ctx context.Context, imageID, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "memimage.replay",
		trace.WithAttributes(
			attribute.String("image.id", imageID),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartEventSpan starts a span for applying one event, using the global
// OTel tracer.
func StartEventSpan(ctx context.Context, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "memimage.event."+kind,
		trace.WithAttributes(
			attribute.String("event.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
