/*
Package memimage implements a transparent persistence layer for a live
Go object graph: mutate classify.Record/Sequence/Dict/Set values (or a
registered class instance) through their wrap.Wrapper and the mutation
both takes effect immediately and is appended to an append-only event
log; reopen the image later and Open replays that log from scratch to
rebuild the exact same graph.

# Overview

An Image pairs a wrap.Graph with the eventlog.Log it is backed by. Open
reads whatever the log already holds and replays it onto a fresh root:

	evlog := eventlog.NewMemoryLog()
	img, err := memimage.Open(context.Background(), evlog)
	if err != nil {
	    log.Fatal(err)
	}

	root := img.Root()
	if err := root.Set(ctx, "name", "ok"); err != nil {
	    log.Fatal(err)
	}

Every Set/Delete/Push/... call through root appends an event. Reopening
the same log replays those events back onto a new root in the same
order they were written.

# Transactions

Begin opens an isolated view over the live graph: reads merge the
overlay over the base, writes stay buffered until Save commits them
back through the base graph's own wrapper methods, in shallowest-path-
first order, rolling back everything already committed if a later
container fails to commit.

	tx, err := img.Begin()
	if err != nil {
	    log.Fatal(err)
	}
	view := tx.Root()
	if err := view.Set("balance", 100); err != nil {
	    tx.Discard()
	    log.Fatal(err)
	}
	if err := img.Save(ctx, tx, 1); err != nil {
	    log.Fatal(err)
	}

# Classes

Register Go struct types so replay reconstructs class-tagged records as
their original type instead of a plain *classify.Record:

	classes := classreg.New()
	classes.Register("Account", Account{})
	img, err := memimage.Open(ctx, log, memimage.WithClasses(classes))

# Configuration

Bootstrap picks an event log backend from a config.Config:

	cfg, err := config.FromFile("image.yaml")
	img, err := memimage.Bootstrap(ctx, cfg)

eventlog.backend selects "memory" (default), "file", or "sqlite";
eventlog.path names the backing file for the latter two.

# Observability

WithLogger, WithMetrics, and WithTracing wire structured logging
(log/slog), OpenTelemetry metrics, and OpenTelemetry tracing around
Open's replay and Image.Save's transaction commit:

	img, err := memimage.Open(ctx, log,
	    memimage.WithLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil))),
	    memimage.WithMetrics(observability.NewMetricsRecorder()),
	    memimage.WithTracing(observability.NewSpanManager()))

# Snapshots

Snapshot serializes the whole graph to a JSON-compatible tree; a later
RestoreSnapshot reconstructs a root from it without replaying the event
log that produced it. Open does not start from a restored root; it
always replays its whole log onto an empty one. replay.FromLog takes a
restored root and applies a log's events on top of it.

# Subpackages

  - wrap: the interception layer mutations are made through
  - eventlog: the append-only log backends (memory, file, sqlite)
  - replay: rebuilds a live graph by replaying a log from the start
  - txn: per-container overlay transactions over a live graph
  - serialize: the snapshot and event-value wire formats
  - classreg: the class-name-to-Go-type registry
  - config: typed accessors over a map[string]any configuration source
  - observability: structured logging, metrics, and tracing helpers
*/
package memimage
