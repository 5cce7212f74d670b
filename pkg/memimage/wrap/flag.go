package wrap

import "sync/atomic"

// replaying is process-wide by design: the replay engine (pkg/memimage/
// replay) has exactly one writer graph live at a time per process, the
// same assumption spec.md §4.5 makes when it describes suppressing event
// emission "while replay is in progress" without scoping that to one
// graph instance.
var replaying atomic.Bool

// BeginReplay suppresses event emission from every Graph's mutating
// methods until EndReplay is called. The replay engine calls this before
// walking a recorded log back onto a fresh root, so rebuilding the graph
// does not re-log the very mutations being replayed.
func BeginReplay() { replaying.Store(true) }

// EndReplay clears the flag set by BeginReplay.
func EndReplay() { replaying.Store(false) }

// Replaying reports whether the process is currently replaying.
func Replaying() bool { return replaying.Load() }
