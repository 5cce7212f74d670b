package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// Event is one recorded mutation: spec.md §3's atomic unit of the
// append-only log. Path names the container the mutation was applied
// to (the record, sequence, dict, or set itself — never the mutated
// property's own path), and Payload carries whatever fields that Kind
// needs, already reduced to a JSON-compatible tree by the serializer.
type Event struct {
	ID        string
	Kind      Kind
	Path      path.Path
	Timestamp time.Time
	Payload   map[string]any
}

// New creates an event with a fresh ID and the current time.
func New(kind Kind, p path.Path, payload map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Path:      p,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// wireEvent is Event's on-disk shape: Path and Timestamp rendered as
// strings so every eventlog backend (NDJSON file, SQLite TEXT column)
// stores the same two formats regardless of how it marshals the
// rest of the struct.
type wireEvent struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Path      string         `json:"path"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Path:      e.Path.String(),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:   e.Payload,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := Kind(w.Kind)
	if !kind.IsValid() {
		return memerrors.Configuration(fmt.Errorf("%w: %q", memerrors.ErrUnknownEventKind, w.Kind), "decoding event")
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return memerrors.Integrity(fmt.Errorf("decoding event timestamp: %w", err), "decoding event")
	}
	e.ID = w.ID
	e.Kind = kind
	e.Path = path.Parse(w.Path)
	e.Timestamp = ts
	e.Payload = w.Payload
	return nil
}
