package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rmurphy/memimage/pkg/memimage/event"
)

// FileLog appends one JSON object per line to a file, fsyncing after
// every write so a crash loses at most the event in flight. It is not
// safe for concurrent use from more than one process.
type FileLog struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	closed bool
}

// OpenFileLog opens path for append, creating it (and any missing
// parent permissions aside) with 0600 if it doesn't exist, so a log
// that may hold sensitive graph state is never created world-readable.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %q: %w", path, err)
	}
	return &FileLog{f: f, enc: json.NewEncoder(f)}, nil
}

// Append implements Log.
func (l *FileLog) Append(_ context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.enc.Encode(evt); err != nil {
		return fmt.Errorf("eventlog: encode: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("eventlog: sync: %w", err)
	}
	return nil
}

// ReadAll implements Log by decoding every line from the start of the
// file, leaving the file's append position untouched.
func (l *FileLog) ReadAll(_ context.Context) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.readAllLocked()
}

func (l *FileLog) readAllLocked() ([]*event.Event, error) {
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("eventlog: seek: %w", err)
	}
	defer l.f.Seek(0, io.SeekEnd) //nolint:errcheck

	dec := json.NewDecoder(bufio.NewReader(l.f))
	var out []*event.Event
	for {
		var evt event.Event
		if err := dec.Decode(&evt); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("eventlog: corrupt entry at offset %d: %w", len(out), err)
		}
		out = append(out, &evt)
	}
	return out, nil
}

// Stream implements Log by decoding lazily off a second handle onto the
// same file, so a large log need not be held in memory all at once.
func (l *FileLog) Stream(ctx context.Context) (<-chan *event.Event, <-chan error) {
	out := make(chan *event.Event)
	errc := make(chan error, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(out)
		errc <- ErrClosed
		close(errc)
		return out, errc
	}
	path := l.f.Name()
	l.mu.Unlock()

	r, err := os.Open(path)
	if err != nil {
		close(out)
		errc <- fmt.Errorf("eventlog: open %q for streaming: %w", path, err)
		close(errc)
		return out, errc
	}

	go func() {
		defer close(out)
		defer close(errc)
		defer r.Close()

		dec := json.NewDecoder(bufio.NewReader(r))
		for {
			var evt event.Event
			if err := dec.Decode(&evt); errors.Is(err, io.EOF) {
				return
			} else if err != nil {
				errc <- fmt.Errorf("eventlog: corrupt entry while streaming: %w", err)
				return
			}
			select {
			case out <- &evt:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc
}

// Close implements Log.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}
