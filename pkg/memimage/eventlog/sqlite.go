package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// SQLiteLog persists events to a SQLite database, ordered by an
// auto-incrementing sequence column. Suitable for single-process
// production use where a plain append-only file isn't queryable enough.
type SQLiteLog struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenSQLiteLog opens or creates path. The file is created with
// restrictive permissions (0600) before sql.Open ever touches it, since
// a replayed graph may contain sensitive state: creating the file
// first and chmod-ing after closes the TOCTOU window where a
// default-mode file would otherwise be briefly world-readable.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				f.Close()
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			sequence  INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT NOT NULL,
			kind      TEXT NOT NULL,
			path      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload   TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create table: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventlog: set file permissions: %w", err)
		}
	}

	return &SQLiteLog{db: db}, nil
}

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("eventlog: marshal payload: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, path, timestamp, payload) VALUES (?, ?, ?, ?, ?)
	`, evt.ID, string(evt.Kind), evt.Path.String(), evt.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("eventlog: append: %w", err)
	}
	return nil
}

// ReadAll implements Log.
func (l *SQLiteLog) ReadAll(ctx context.Context) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.readAllLocked(ctx)
}

func (l *SQLiteLog) readAllLocked(ctx context.Context) ([]*event.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, kind, path, timestamp, payload FROM events ORDER BY sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: iterate rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(rows rowScanner) (*event.Event, error) {
	var id, kind, p, timestamp string
	var payloadJSON sql.NullString
	if err := rows.Scan(&id, &kind, &p, &timestamp, &payloadJSON); err != nil {
		return nil, fmt.Errorf("eventlog: scan row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("eventlog: parse timestamp %q: %w", timestamp, err)
	}
	var payload map[string]any
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &payload); err != nil {
			return nil, fmt.Errorf("eventlog: decode payload: %w", err)
		}
	}
	return &event.Event{
		ID:        id,
		Kind:      event.Kind(kind),
		Path:      path.Parse(p),
		Timestamp: ts,
		Payload:   payload,
	}, nil
}

// Stream implements Log by querying once and feeding rows through a
// channel as they are scanned, so a consumer can begin replaying before
// the full result set has been read off the connection.
func (l *SQLiteLog) Stream(ctx context.Context) (<-chan *event.Event, <-chan error) {
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
	db := l.db
	l.mu.Unlock()

	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, path, timestamp, payload FROM events ORDER BY sequence
	`)
	if err != nil {
		close(out)
		errc <- fmt.Errorf("eventlog: query for streaming: %w", err)
		close(errc)
		return out, errc
	}

	go func() {
		defer close(out)
		defer close(errc)
		defer rows.Close()

		for rows.Next() {
			evt, err := scanEvent(rows)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errc <- fmt.Errorf("eventlog: iterate rows while streaming: %w", err)
		}
	}()
	return out, errc
}

// Close implements Log.
func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
