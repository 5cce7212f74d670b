package eventlog

import (
	"context"
	"sync"

	"github.com/rmurphy/memimage/pkg/memimage/event"
)

// MemoryLog is an in-process Log with no persistence, for tests and for
// an Image that is deliberately ephemeral.
type MemoryLog struct {
	mu     sync.RWMutex
	events []*event.Event
	closed bool
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.events = append(l.events, evt)
	return nil
}

// ReadAll implements Log.
func (l *MemoryLog) ReadAll(_ context.Context) ([]*event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	out := make([]*event.Event, len(l.events))
	copy(out, l.events)
	return out, nil
}

// Stream implements Log by snapshotting the current entries and
// feeding them through an unbuffered channel; it does not see events
// appended after the snapshot is taken.
func (l *MemoryLog) Stream(ctx context.Context) (<-chan *event.Event, <-chan error) {
	out := make(chan *event.Event)
	errc := make(chan error, 1)

	snapshot, err := l.ReadAll(ctx)
	if err != nil {
		close(out)
		errc <- err
		close(errc)
		return out, errc
	}

	go func() {
		defer close(out)
		defer close(errc)
		for _, evt := range snapshot {
			select {
			case out <- evt:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc
}

// Close implements Log.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Len returns the number of entries currently stored.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
