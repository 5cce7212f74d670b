// Package memimage ties the interception layer (wrap), the event log
// (eventlog), the replay engine (replay), and the transaction overlay
// (txn) together into one entry point: Open reconstructs a live graph
// from whatever a log already holds, and every further mutation to the
// graph flows back through the same log, via either the live wrap.Graph
// directly or a txn.Tx opened against it.
package memimage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmurphy/memimage/pkg/memimage/classreg"
	"github.com/rmurphy/memimage/pkg/memimage/config"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/observability"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/replay"
	"github.com/rmurphy/memimage/pkg/memimage/serialize"
	"github.com/rmurphy/memimage/pkg/memimage/txn"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
)

// Image is one memory image: a live object graph, the event log it is
// backed by, and the observability hooks that instrument replay and
// transaction saves against it.
//
// Image is safe for concurrent use. Reads and in-place mutations go
// through Root() and its Wrapper; isolated multi-step mutations go
// through Begin().
type Image struct {
	mu      sync.RWMutex
	id      string
	graph   *wrap.Graph
	log     eventlog.Log
	classes *classreg.Registry
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Option configures an Image at Open time.
type Option func(*imageOptions)

type imageOptions struct {
	id      string
	classes *classreg.Registry
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// WithImageID names the image for logging and tracing. Defaults to a
// generated UUID if not set.
func WithImageID(id string) Option {
	return func(o *imageOptions) { o.id = id }
}

// WithClasses supplies the registry used to reconstruct class-tagged
// records as their original Go type during replay. Without it, replay
// reconstructs them as plain *classify.Record values carrying the class
// name.
func WithClasses(classes *classreg.Registry) Option {
	return func(o *imageOptions) { o.classes = classes }
}

// WithLogger supplies the structured logger observability calls are
// made against. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *imageOptions) { o.logger = logger }
}

// WithMetrics supplies the metrics recorder replay and transaction
// saves report to. Defaults to observability.NoopMetrics{}.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(o *imageOptions) { o.metrics = metrics }
}

// WithTracing supplies the span manager replay and transaction saves
// report to. Defaults to observability.NoopSpanManager{}.
func WithTracing(spans observability.SpanManager) Option {
	return func(o *imageOptions) { o.spans = spans }
}

// Open reconstructs an Image from log: it reads every event already
// recorded and replays them onto a fresh root, or starts from an empty
// record if the log is empty. Every subsequent mutation through the
// returned Image's Root() appends to the same log.
func Open(ctx context.Context, log eventlog.Log, opts ...Option) (*Image, error) {
	o := &imageOptions{
		id:      uuid.New().String(),
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(o)
	}

	runID := uuid.New().String()
	logger := observability.EnrichLogger(o.logger, o.id, runID)

	startTime := time.Now()
	ctx, span := o.spans.StartReplaySpan(ctx, o.id, runID)
	observability.LogReplayStart(logger, runID)

	events, err := log.ReadAll(ctx)
	if err != nil {
		duration := time.Since(startTime)
		wrapped := memerrors.Backend(err, "reading event log to open image")
		o.spans.EndSpanWithError(span, wrapped)
		observability.LogReplayError(logger, runID, wrapped, float64(duration.Milliseconds()), "")
		o.metrics.RecordReplayRun(ctx, false, duration)
		return nil, wrapped
	}

	engine := replay.New(classFactory(o.classes), nil)
	root, err := engine.Replay(nil, events)
	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())
	if err != nil {
		o.spans.EndSpanWithError(span, err)
		observability.LogReplayError(logger, runID, err, durationMs, lastEventKind(events))
		o.metrics.RecordReplayRun(ctx, false, duration)
		return nil, err
	}

	o.spans.EndSpanWithError(span, nil)
	observability.LogReplayComplete(logger, runID, durationMs, len(events))
	o.metrics.RecordReplayRun(ctx, true, duration)

	graph := wrap.New(log)
	graph.Attach(root)

	return &Image{
		id:      o.id,
		graph:   graph,
		log:     log,
		classes: o.classes,
		logger:  o.logger,
		metrics: o.metrics,
		spans:   o.spans,
	}, nil
}

// Bootstrap opens an Image whose event log backend is chosen by cfg:
//
//	eventlog.backend: "memory" (default), "file", or "sqlite"
//	eventlog.path:    file path, required for "file" and "sqlite"
func Bootstrap(ctx context.Context, cfg config.Config, opts ...Option) (*Image, error) {
	backend := cfg.String("eventlog.backend", "memory")
	var log eventlog.Log
	switch backend {
	case "memory", "":
		log = eventlog.NewMemoryLog()
	case "file":
		p := cfg.String("eventlog.path", "")
		if p == "" {
			return nil, memerrors.Configuration(fmt.Errorf("memimage: eventlog.path required for file backend"), "bootstrapping image")
		}
		fl, err := eventlog.OpenFileLog(p)
		if err != nil {
			return nil, memerrors.Backend(err, "opening file event log")
		}
		log = fl
	case "sqlite":
		p := cfg.String("eventlog.path", "")
		if p == "" {
			return nil, memerrors.Configuration(fmt.Errorf("memimage: eventlog.path required for sqlite backend"), "bootstrapping image")
		}
		sl, err := eventlog.OpenSQLiteLog(p)
		if err != nil {
			return nil, memerrors.Backend(err, "opening sqlite event log")
		}
		log = sl
	default:
		return nil, memerrors.Configuration(fmt.Errorf("memimage: unknown eventlog.backend %q", backend), "bootstrapping image")
	}
	return Open(ctx, log, opts...)
}

// Root returns the Wrapper for the image's root container. Every
// mutation through it appends to the image's event log directly.
func (img *Image) Root() *wrap.Wrapper {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.graph.Root()
}

// ID returns the image's identifier, as set by WithImageID or
// generated at Open.
func (img *Image) ID() string {
	return img.id
}

// Begin opens a transaction against the image's live graph. The
// returned Tx's View methods read through to the live graph and buffer
// writes until Save commits them back.
func (img *Image) Begin() (*txn.Tx, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return txn.Begin(img.graph)
}

// Save commits tx, instrumenting the save with the image's logger,
// metrics, and tracer.
func (img *Image) Save(ctx context.Context, tx *txn.Tx, containerCount int) error {
	runID := uuid.New().String()
	logger := observability.EnrichLogger(img.logger, img.id, runID)

	startTime := time.Now()
	ctx, span := img.spans.StartTransactionSpan(ctx, img.id)

	err := tx.Save(ctx)
	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	if err != nil {
		img.spans.EndSpanWithError(span, err)
		observability.LogTransactionError(logger, runID, err, durationMs)
		img.metrics.RecordTransactionSave(ctx, false, duration, containerCount)
		return err
	}

	img.spans.EndSpanWithError(span, nil)
	observability.LogTransactionSave(logger, runID, durationMs, containerCount)
	img.metrics.RecordTransactionSave(ctx, true, duration, containerCount)
	return nil
}

// Snapshot serializes the whole graph to a JSON-compatible tree
// (serialize.ModeSnapshot), suitable for writing to disk as a
// checkpoint that RestoreSnapshot rebuilds a root from. Open does not
// accept such a root: it always replays its whole log from empty.
func (img *Image) Snapshot(_ context.Context) (any, error) {
	img.mu.RLock()
	root := img.graph.Root()
	img.mu.RUnlock()

	tree, err := serialize.Serialize(root.Target(), serialize.ModeSnapshot, path.Root(), serialize.Options{
		Unwrap: wrap.Unwrap,
	})
	if err != nil {
		observability.LogSnapshotError(img.logger, img.id, "serialize", err)
		return nil, err
	}
	observability.LogSnapshotSaved(img.logger, img.id, approximateSize(tree))
	img.metrics.RecordSnapshotSize(context.Background(), int64(approximateSize(tree)))
	return tree, nil
}

// RestoreSnapshot reconstructs a root container from a tree Snapshot
// previously produced, without touching the event log. The result is a
// plain root value: Open cannot start from it, since Open always
// replays onto a fresh empty root. replay.FromLog accepts it as the
// root to apply a log's events onto.
func RestoreSnapshot(tree any, classes *classreg.Registry) (any, error) {
	d := &serialize.Deserializer{Classes: classFactory(classes)}
	root, phs, err := d.Pass1(tree)
	if err != nil {
		return nil, err
	}
	resolver := &serialize.SnapshotResolver{Root: root}
	if err := serialize.ResolvePlaceholders(phs, resolver); err != nil {
		return nil, err
	}
	return root, nil
}

// Close releases the image's event log.
func (img *Image) Close() error {
	if img.log == nil {
		return nil
	}
	return img.log.Close()
}

func classFactory(classes *classreg.Registry) serialize.ClassFactory {
	if classes == nil {
		return nil
	}
	return classes
}

func lastEventKind(events []*event.Event) string {
	if len(events) == 0 {
		return ""
	}
	return string(events[len(events)-1].Kind)
}

// approximateSize estimates a snapshot's serialized size in bytes by
// walking the tree, rather than marshaling it twice just to measure it.
func approximateSize(v any) int {
	switch t := v.(type) {
	case map[string]any:
		n := 2
		for k, vv := range t {
			n += len(k) + 3 + approximateSize(vv)
		}
		return n
	case []any:
		n := 2
		for _, vv := range t {
			n += 1 + approximateSize(vv)
		}
		return n
	case string:
		return len(t) + 2
	default:
		return 8
	}
}
