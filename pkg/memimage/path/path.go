// Package path implements the canonical location identity used
// throughout memimage: an ordered sequence of textual segments, with
// sequence-element segments carrying their decimal index.
package path

import "strings"

// Path is an ordered sequence of segments. The empty Path denotes the
// root of the graph.
type Path []string

// Root is the empty path.
func Root() Path { return nil }

// Child returns a new path with segment appended.
func (p Path) Child(segment string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// IsRoot reports whether p denotes the graph root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return len(p)
}

// String joins the segments with "." — the delta manager's canonical
// string key form (spec.md §3).
func (p Path) String() string {
	return strings.Join([]string(p), ".")
}

// Parent returns all but the last segment, and the last segment itself.
// Calling Parent on the root path returns (nil, "", false).
func (p Path) Parent() (parent Path, last string, ok bool) {
	if len(p) == 0 {
		return nil, "", false
	}
	return p[:len(p)-1], p[len(p)-1], true
}

// Equal reports whether p and other denote the same path.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Parse splits a "."-joined string form back into a Path. An empty
// string parses to the root path.
func Parse(s string) Path {
	if s == "" {
		return Root()
	}
	return Path(strings.Split(s, "."))
}

// Strip removes prefix from p and returns the remaining suffix. ok is
// false if prefix is not actually a prefix of p.
func (p Path) Strip(prefix Path) (suffix Path, ok bool) {
	if !p.HasPrefix(prefix) {
		return nil, false
	}
	return p[len(prefix):], true
}

// Join appends suffix's segments onto p.
func (p Path) Join(suffix Path) Path {
	out := make(Path, 0, len(p)+len(suffix))
	out = append(out, p...)
	out = append(out, suffix...)
	return out
}
