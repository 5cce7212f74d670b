package event

import (
	"fmt"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
)

// Handler performs the mutation a Kind names against the already-
// located target container. It never navigates a path itself — that is
// the replay engine's and the interception layer's job — it only knows
// how to read a payload and mutate the one container it is handed.
type Handler interface {
	Apply(container any, payload map[string]any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(container any, payload map[string]any) error

// Apply implements Handler.
func (f HandlerFunc) Apply(container any, payload map[string]any) error {
	return f(container, payload)
}

// apply is the built-in mutation logic for each of the eighteen kinds,
// registered as every Registry's default. A comparator-driven sort
// cannot be replayed mechanically in Go the way sequence.push or
// sequence.splice can, so sort and script events carry the resulting
// state directly in their payload rather than the inputs that produced
// it; everything else replays the same index arithmetic the live
// mutation performed.
func apply(kind Kind, container any, payload map[string]any) error {
	switch kind {
	case KindPropertyWrite:
		return applyRecord(container, func(rl classify.RecordLike) error {
			key, _ := payload["key"].(string)
			rl.Set(key, payload["value"])
			return nil
		})
	case KindPropertyDelete:
		return applyRecord(container, func(rl classify.RecordLike) error {
			key, _ := payload["key"].(string)
			rl.Delete(key)
			return nil
		})

	case KindSequencePush:
		return applySequence(container, func(seq *classify.Sequence) error {
			seq.Items = append(seq.Items, asSlice(payload["items"])...)
			return nil
		})
	case KindSequencePop:
		return applySequence(container, func(seq *classify.Sequence) error {
			if len(seq.Items) > 0 {
				seq.Items = seq.Items[:len(seq.Items)-1]
			}
			return nil
		})
	case KindSequenceShift:
		return applySequence(container, func(seq *classify.Sequence) error {
			if len(seq.Items) > 0 {
				seq.Items = seq.Items[1:]
			}
			return nil
		})
	case KindSequenceUnshift:
		return applySequence(container, func(seq *classify.Sequence) error {
			out := append([]any{}, asSlice(payload["items"])...)
			seq.Items = append(out, seq.Items...)
			return nil
		})
	case KindSequenceSplice:
		return applySequence(container, func(seq *classify.Sequence) error {
			start := clampIndex(asInt(payload["start"]), len(seq.Items))
			end := clampIndex(start+asInt(payload["deleteCount"]), len(seq.Items))
			tail := append([]any{}, seq.Items[end:]...)
			seq.Items = append(append(seq.Items[:start:start], asSlice(payload["items"])...), tail...)
			return nil
		})
	case KindSequenceSort:
		return applySequence(container, func(seq *classify.Sequence) error {
			seq.Items = append([]any{}, asSlice(payload["items"])...)
			return nil
		})
	case KindSequenceReverse:
		return applySequence(container, func(seq *classify.Sequence) error {
			for i, j := 0, len(seq.Items)-1; i < j; i, j = i+1, j-1 {
				seq.Items[i], seq.Items[j] = seq.Items[j], seq.Items[i]
			}
			return nil
		})
	case KindSequenceFill:
		return applySequence(container, func(seq *classify.Sequence) error {
			start := clampIndex(asInt(payload["start"]), len(seq.Items))
			end := clampIndex(asInt(payload["end"]), len(seq.Items))
			for i := start; i < end; i++ {
				seq.Items[i] = payload["value"]
			}
			return nil
		})
	case KindSequenceCopyWithin:
		return applySequence(container, func(seq *classify.Sequence) error {
			n := len(seq.Items)
			target := clampIndex(asInt(payload["target"]), n)
			start := clampIndex(asInt(payload["start"]), n)
			end := clampIndex(asInt(payload["end"]), n)
			chunk := append([]any{}, seq.Items[start:end]...)
			for i, v := range chunk {
				if target+i >= n {
					break
				}
				seq.Items[target+i] = v
			}
			return nil
		})

	case KindMapSet:
		return applyDict(container, func(d *classify.Dict) error {
			d.Set(payload["key"], payload["value"])
			return nil
		})
	case KindMapDelete:
		return applyDict(container, func(d *classify.Dict) error {
			d.Delete(payload["key"])
			return nil
		})
	case KindMapClear:
		return applyDict(container, func(d *classify.Dict) error {
			d.Clear()
			return nil
		})

	case KindSetAdd:
		return applySet(container, func(s *classify.Set) error {
			s.Add(payload["value"])
			return nil
		})
	case KindSetDelete:
		return applySet(container, func(s *classify.Set) error {
			s.Delete(payload["value"])
			return nil
		})
	case KindSetClear:
		return applySet(container, func(s *classify.Set) error {
			s.Clear()
			return nil
		})

	case KindScript:
		return replaceContents(container, payload["snapshot"])
	}
	return fmt.Errorf("event: no builtin handler for kind %q", kind)
}

// replaceContents implements the script escape hatch: a custom method
// that does not reduce to one of the other seventeen kinds is recorded
// as the net effect it had on the one container it touched, and replay
// applies that effect by wholesale replacing the container's contents.
func replaceContents(container any, snapshot any) error {
	switch c := container.(type) {
	case *classify.Record:
		for _, k := range c.Keys() {
			c.Delete(k)
		}
		if m, ok := snapshot.(map[string]any); ok {
			for k, v := range m {
				c.Set(k, v)
			}
		}
		return nil
	case *classify.Sequence:
		c.Items = append([]any{}, asSlice(snapshot)...)
		return nil
	case *classify.Dict:
		c.Clear()
		for _, pair := range asSlice(snapshot) {
			if kv, ok := pairOf(pair); ok {
				c.Set(kv[0], kv[1])
			}
		}
		return nil
	case *classify.Set:
		c.Clear()
		for _, v := range asSlice(snapshot) {
			c.Add(v)
		}
		return nil
	default:
		return fmt.Errorf("event: script snapshot target of unsupported type %T", container)
	}
}

func applyRecord(container any, fn func(classify.RecordLike) error) error {
	rl, ok := classify.AsRecordLike(container)
	if !ok {
		return fmt.Errorf("event: expected a record-like container, got %T", container)
	}
	return fn(rl)
}

func applySequence(container any, fn func(*classify.Sequence) error) error {
	seq, ok := container.(*classify.Sequence)
	if !ok {
		return fmt.Errorf("event: expected a sequence container, got %T", container)
	}
	return fn(seq)
}

func applyDict(container any, fn func(*classify.Dict) error) error {
	d, ok := container.(*classify.Dict)
	if !ok {
		return fmt.Errorf("event: expected a map container, got %T", container)
	}
	return fn(d)
}

func applySet(container any, fn func(*classify.Set) error) error {
	s, ok := container.(*classify.Set)
	if !ok {
		return fmt.Errorf("event: expected a set container, got %T", container)
	}
	return fn(s)
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// pairOf accepts both a genuine [2]any (a live in-memory value never
// touched by JSON) and a []any of length 2 (what the same pair decodes
// to after a round trip through an event log), since a script snapshot's
// map entries may arrive in either shape depending on whether the event
// was ever persisted.
func pairOf(v any) ([2]any, bool) {
	switch p := v.(type) {
	case [2]any:
		return p, true
	case []any:
		if len(p) == 2 {
			return [2]any{p[0], p[1]}, true
		}
	}
	return [2]any{}, false
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func clampIndex(i, length int) int {
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}
