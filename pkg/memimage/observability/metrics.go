package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records memory-image metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventApply records one event being applied during replay,
	// with its kind, duration, and error status.
	RecordEventApply(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordReplayRun records a full event-log replay completing.
	RecordReplayRun(ctx context.Context, success bool, duration time.Duration)

	// RecordTransactionSave records a transaction commit, successful or
	// not, and how many containers it touched.
	RecordTransactionSave(ctx context.Context, success bool, duration time.Duration, containerCount int)

	// RecordSnapshotSize records the size of a snapshot written to disk.
	RecordSnapshotSize(ctx context.Context, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventApplies   metric.Int64Counter
	eventLatency   metric.Float64Histogram
	eventErrors    metric.Int64Counter
	replayRuns     metric.Int64Counter
	replayLatency  metric.Float64Histogram
	txSaves        metric.Int64Counter
	txLatency      metric.Float64Histogram
	txContainers   metric.Int64Histogram
	snapshotBytes  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("memimage")

	eventApplies, err := meter.Int64Counter("memimage.event.applies",
		metric.WithDescription("Number of events applied during replay"),
	)
	if err != nil {
		return nil, err
	}

	eventLatency, err := meter.Float64Histogram("memimage.event.latency_ms",
		metric.WithDescription("Event apply latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventErrors, err := meter.Int64Counter("memimage.event.errors",
		metric.WithDescription("Number of event apply errors"),
	)
	if err != nil {
		return nil, err
	}

	replayRuns, err := meter.Int64Counter("memimage.replay.runs",
		metric.WithDescription("Number of replay runs"),
	)
	if err != nil {
		return nil, err
	}

	replayLatency, err := meter.Float64Histogram("memimage.replay.latency_ms",
		metric.WithDescription("Replay run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	txSaves, err := meter.Int64Counter("memimage.transaction.saves",
		metric.WithDescription("Number of transaction saves"),
	)
	if err != nil {
		return nil, err
	}

	txLatency, err := meter.Float64Histogram("memimage.transaction.latency_ms",
		metric.WithDescription("Transaction save latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	txContainers, err := meter.Int64Histogram("memimage.transaction.containers",
		metric.WithDescription("Number of containers committed per transaction"),
	)
	if err != nil {
		return nil, err
	}

	snapshotBytes, err := meter.Int64Histogram("memimage.snapshot.size_bytes",
		metric.WithDescription("Snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventApplies:  eventApplies,
		eventLatency:  eventLatency,
		eventErrors:   eventErrors,
		replayRuns:    replayRuns,
		replayLatency: replayLatency,
		txSaves:       txSaves,
		txLatency:     txLatency,
		txContainers:  txContainers,
		snapshotBytes: snapshotBytes,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventApply records one applied event.
func (m *otelMetrics) RecordEventApply(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
	}

	m.eventApplies.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.eventErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordReplayRun records a replay run.
func (m *otelMetrics) RecordReplayRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.replayRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.replayLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordTransactionSave records a transaction save.
func (m *otelMetrics) RecordTransactionSave(ctx context.Context, success bool, duration time.Duration, containerCount int) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.txSaves.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.txLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.txContainers.Record(ctx, int64(containerCount), metric.WithAttributes(attrs...))
}

// RecordSnapshotSize records a snapshot write.
func (m *otelMetrics) RecordSnapshotSize(ctx context.Context, sizeBytes int64) {
	m.snapshotBytes.Record(ctx, sizeBytes)
}
