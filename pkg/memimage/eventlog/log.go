// Package eventlog provides the append-only backing store for the
// event log spec.md §3 and §5 describe: every mutation is appended
// once, in order, and replay reads them back in the same order to
// reconstruct the graph.
package eventlog

import (
	"context"
	"errors"

	"github.com/rmurphy/memimage/pkg/memimage/event"
)

// ErrClosed is returned by any operation on a closed Log.
var ErrClosed = errors.New("eventlog: log closed")

// Log is the append-only store a replayable object graph is backed by.
// Implementations must be safe for concurrent use: a transaction save
// appends while a long-running read replays concurrently with it.
type Log interface {
	// Append writes evt as the next entry. Implementations durably
	// commit before returning where the backend supports it (FileLog
	// fsyncs, SQLiteLog commits its transaction).
	Append(ctx context.Context, evt *event.Event) error

	// ReadAll returns every entry in append order, eagerly. Suitable
	// for logs small enough to fit comfortably in memory.
	ReadAll(ctx context.Context) ([]*event.Event, error)

	// Stream returns every entry in append order, lazily: the replay
	// engine can begin applying events before the whole log has been
	// read, which matters for a log too large to materialize at once.
	// The error channel carries at most one error and is closed after
	// the event channel is drained or an error is sent, whichever comes
	// first.
	Stream(ctx context.Context) (<-chan *event.Event, <-chan error)

	// Close releases any resources (file handles, connections). After
	// Close, every other method returns ErrClosed.
	Close() error
}
