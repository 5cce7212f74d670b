// Package observability provides production-grade observability for a
// memory image: structured logging, metrics, and distributed tracing
// around its two big-grain operations (replaying an event log into a
// live graph, and saving a transaction) and the small-grain operation
// each of those is made of (applying one event, committing one
// container).
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds memory-image context to a logger, returning a new
// logger with image_id and run_id fields every subsequent call carries
// without having to repeat them.
//
// Example:
//
//	enriched := EnrichLogger(logger, "orders", "replay-7")
//	enriched.Info("applying event") // includes image_id, run_id
func EnrichLogger(logger *slog.Logger, imageID, runID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("image_id", imageID),
		slog.String("run_id", runID),
	)
}

// LogReplayStart logs the start of a full event-log replay.
func LogReplayStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("replay starting",
		slog.String("run_id", runID),
	)
}

// LogReplayComplete logs successful completion of a replay.
func LogReplayComplete(logger *slog.Logger, runID string, durationMs float64, eventCount int) {
	if logger == nil {
		return
	}
	logger.Info("replay completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("events_applied", eventCount),
	)
}

// LogReplayError logs replay failure with the run ID, error, duration,
// and the event kind the caller passes as lastEventKind. It carries no
// log position.
func LogReplayError(logger *slog.Logger, runID string, err error, durationMs float64, lastEventKind string) {
	if logger == nil {
		return
	}
	logger.Error("replay failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_event_kind", lastEventKind),
	)
}

// LogEventApply logs one event being applied during replay.
func LogEventApply(logger *slog.Logger, kind, path string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event applied",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEventApplyError logs a single event failing to apply.
func LogEventApplyError(logger *slog.Logger, kind, path string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event apply failed",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// LogTransactionSave logs a transaction committing successfully.
func LogTransactionSave(logger *slog.Logger, runID string, durationMs float64, containerCount int) {
	if logger == nil {
		return
	}
	logger.Info("transaction saved",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("containers_committed", containerCount),
	)
}

// LogTransactionError logs a transaction failing to commit, after any
// compensating rollback has already run.
func LogTransactionError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("transaction save failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSnapshotSaved logs a whole-graph snapshot write.
func LogSnapshotSaved(logger *slog.Logger, target string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.String("target", target),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSnapshotError logs a snapshot write or read failure (non-fatal to
// the caller, who may fall back to a full replay).
func LogSnapshotError(logger *slog.Logger, target, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot operation failed",
		slog.String("target", target),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation. Returns a
// function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
