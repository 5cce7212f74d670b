// Package delta implements the path-keyed overlay a transaction's
// uncommitted writes live in (spec.md §4.9): reads merge the overlay
// over the base graph, writes land only in the overlay, and a deletion
// is itself a recorded overlay entry rather than the absence of one —
// otherwise there would be no way to distinguish "never touched" from
// "explicitly removed" when the base graph still has a value there.
package delta

import (
	"sort"
	"sync"

	"github.com/rmurphy/memimage/pkg/memimage/path"
)

// deletedType is the sentinel overlay value recording an explicit
// deletion, distinct from a path simply never having been written.
type deletedType struct{}

// Deleted is the sentinel value Get and Entries report for a path the
// transaction deleted. It is never mistaken for any real graph value:
// no classify value ever equals it, since it is a distinct unexported
// type.
var Deleted = deletedType{}

// IsDeleted reports whether v is the deletion sentinel.
func IsDeleted(v any) bool {
	_, ok := v.(deletedType)
	return ok
}

// Manager is the overlay itself: a flat map from path string to
// pending value, key-ordered only when Entries is asked for it.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]any
}

// New creates an empty overlay.
func New() *Manager {
	return &Manager{entries: make(map[string]any)}
}

// Has reports whether p has a pending entry (a write or a delete).
func (m *Manager) Has(p path.Path) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[p.String()]
	return ok
}

// Get returns the pending value at p and whether one exists. The
// returned value may be Deleted; callers must check IsDeleted before
// treating it as real graph content.
func (m *Manager) Get(p path.Path) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[p.String()]
	return v, ok
}

// Set records a pending write at p.
func (m *Manager) Set(p path.Path, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[p.String()] = value
}

// Delete records a pending deletion at p.
func (m *Manager) Delete(p path.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[p.String()] = Deleted
}

// Size returns the number of pending entries.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear discards every pending entry, for Discard (spec.md §4.9:
// abandoning a transaction without committing any of its writes).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]any)
}

// Checkpoint returns an independent snapshot of the overlay as it
// stands now, for a nested savepoint within a single transaction.
func (m *Manager) Checkpoint() *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		cp[k] = v
	}
	return &Manager{entries: cp}
}

// Restore replaces the overlay's contents with snapshot's, discarding
// any entries written since the snapshot was taken.
func (m *Manager) Restore(snapshot *Manager) {
	snapshot.mu.RLock()
	cp := make(map[string]any, len(snapshot.entries))
	for k, v := range snapshot.entries {
		cp[k] = v
	}
	snapshot.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = cp
}

// Entry is one pending overlay entry, with its path parsed back out of
// its string key for the caller's convenience.
type Entry struct {
	Path  path.Path
	Value any
}

// Entries returns every pending entry ordered shallowest-path-first,
// so that committing them in order writes a parent before any of its
// children — required for the commit to be atomic with respect to a
// concurrent reader: a reader must never observe a child write without
// also observing the parent it hangs off.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for k, v := range m.entries {
		out = append(out, Entry{Path: path.Parse(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) < len(out[j].Path)
		}
		return out[i].Path.String() < out[j].Path.String()
	})
	return out
}
