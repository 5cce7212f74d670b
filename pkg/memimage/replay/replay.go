// Package replay rebuilds a live object graph by walking a recorded
// event log from the beginning (spec.md §4.5 / §5). Each event's
// payload was written in event-value wire form by the interception
// layer, so replaying it back is the mirror image of wrap.Graph.encode:
// every value the payload carries is deserialized independently — the
// same independent local scope Graph.encode gave it when it was first
// written — with external references resolved against whatever the
// engine has already replayed into the graph so far.
package replay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/rmurphy/memimage/pkg/memimage/event"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/serialize"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
)

// Engine replays events onto a root container, indexing every container
// it encounters by canonical path so a later event addressing a nested
// path, or a value referencing an object introduced by an earlier
// event, can be resolved the same way wrap.Graph resolves them live.
type Engine struct {
	// Classes reconstructs class-tagged records as their original Go
	// type. Nil reconstructs them as a plain *classify.Record carrying
	// the class name.
	Classes serialize.ClassFactory
	// Registry dispatches each event's mutation. A nil Registry passed
	// to New is replaced with event.NewRegistry()'s built-in handlers.
	Registry *event.Registry

	index map[string]any
	root  any
}

// New creates a replay engine. registry may be nil to use the built-in
// handler for all eighteen kinds.
func New(classes serialize.ClassFactory, registry *event.Registry) *Engine {
	if registry == nil {
		registry = event.NewRegistry()
	}
	return &Engine{Classes: classes, Registry: registry, index: make(map[string]any)}
}

// FromLog rebuilds a graph by reading every event in log, in order, and
// applying it to root. root defaults to an empty plain record if nil.
func FromLog(ctx context.Context, log eventlog.Log, root any, classes serialize.ClassFactory) (any, error) {
	events, err := log.ReadAll(ctx)
	if err != nil {
		return nil, memerrors.Backend(err, "reading event log for replay")
	}
	return New(classes, nil).Replay(root, events)
}

// FromStream rebuilds a graph by consuming log's Stream as entries
// arrive, applying each one as soon as it is read rather than waiting
// for the whole log to be buffered first.
func FromStream(ctx context.Context, log eventlog.Log, root any, classes serialize.ClassFactory) (any, error) {
	e := New(classes, nil)
	e.setRoot(root)

	wrap.BeginReplay()
	defer wrap.EndReplay()

	events, errc := log.Stream(ctx)
	for evt := range events {
		if err := e.apply(evt); err != nil {
			return nil, err
		}
	}
	if err := <-errc; err != nil {
		return nil, memerrors.Backend(err, "streaming event log for replay")
	}
	return e.root, nil
}

// Replay applies events to root in order and returns the resulting
// root. Event emission is suppressed for its duration (wrap.BeginReplay)
// so replaying a log never re-appends the mutations it is replaying.
func (e *Engine) Replay(root any, events []*event.Event) (any, error) {
	e.setRoot(root)

	wrap.BeginReplay()
	defer wrap.EndReplay()

	for _, evt := range events {
		if err := e.apply(evt); err != nil {
			return nil, err
		}
	}
	return e.root, nil
}

func (e *Engine) setRoot(root any) {
	if root == nil {
		root = classify.NewRecord("")
	}
	e.root = root
	e.register(root, path.Root())
}

// apply locates the container evt.Path names, decodes its payload back
// into live values, and dispatches the mutation through Registry.
func (e *Engine) apply(evt *event.Event) error {
	container, ok := e.index[evt.Path.String()]
	if !ok {
		return memerrors.Integrity(
			fmt.Errorf("replay: no container at path %q for event kind %q", evt.Path, evt.Kind),
			"replaying event",
		)
	}
	payload, err := e.decodePayload(evt.Kind, evt.Path, container, evt.Payload)
	if err != nil {
		return err
	}
	return e.Registry.Apply(container, &event.Event{
		ID: evt.ID, Kind: evt.Kind, Path: evt.Path, Timestamp: evt.Timestamp, Payload: payload,
	})
}

// decodePayload turns one event's wire-form payload back into live
// values, mirroring the path each value would have been linked at had
// the live interception layer produced this same mutation — so an
// external reference appearing in a later event, pointing back at an
// object this event introduces, resolves correctly.
func (e *Engine) decodePayload(kind event.Kind, at path.Path, container any, raw map[string]any) (map[string]any, error) {
	switch kind {
	case event.KindPropertyWrite:
		key, _ := raw["key"].(string)
		v, err := e.decodeAt(raw["value"], at.Child(key))
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": key, "value": v}, nil

	case event.KindPropertyDelete:
		return raw, nil

	case event.KindSequencePush:
		items, err := e.decodeItemsAt(raw["items"], at, sequenceLen(container))
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil

	case event.KindSequencePop, event.KindSequenceShift, event.KindSequenceReverse:
		return raw, nil

	case event.KindSequenceUnshift:
		items, err := e.decodeItemsAt(raw["items"], at, 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil

	case event.KindSequenceSplice:
		start := asInt(raw["start"])
		items, err := e.decodeItemsAt(raw["items"], at, start)
		if err != nil {
			return nil, err
		}
		return map[string]any{"start": start, "deleteCount": raw["deleteCount"], "items": items}, nil

	case event.KindSequenceSort:
		// Sort carries the resulting order of values already in the
		// sequence, not new ones: each item decodes to either a literal
		// or an external reference to the path it already occupies.
		items, err := e.decodeItemsAt(raw["items"], at, -1)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items}, nil

	case event.KindSequenceFill:
		start := asInt(raw["start"])
		v, err := e.decodeAt(raw["value"], at.Child(strconv.Itoa(start)))
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": v, "start": raw["start"], "end": raw["end"]}, nil

	case event.KindSequenceCopyWithin:
		return raw, nil

	case event.KindMapSet:
		d, _ := container.(*classify.Dict)
		k, err := e.decodeValue(raw["key"])
		if err != nil {
			return nil, err
		}
		idx := dictIndexOf(d, k)
		if idx < 0 {
			idx = d.Len()
		}
		v, err := e.decodeAt(raw["value"], at.Child("v"+strconv.Itoa(idx)))
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": k, "value": v}, nil

	case event.KindMapDelete:
		k, err := e.decodeValue(raw["key"])
		if err != nil {
			return nil, err
		}
		return map[string]any{"key": k}, nil

	case event.KindMapClear:
		return raw, nil

	case event.KindSetAdd:
		v, err := e.decodeAt(raw["value"], at.Child("v"+strconv.Itoa(setLen(container))))
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": v}, nil

	case event.KindSetDelete:
		v, err := e.decodeValue(raw["value"])
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": v}, nil

	case event.KindSetClear:
		return raw, nil

	case event.KindScript:
		snapshot, err := e.decodeScriptSnapshot(container, at, raw["snapshot"])
		if err != nil {
			return nil, err
		}
		return map[string]any{"snapshot": snapshot}, nil
	}
	return raw, nil
}

// decodeValue decodes one independently-encoded wire value without
// registering it at any path — used for map keys and for values a
// set.delete or map.delete names, which must already exist somewhere
// in the graph rather than be freshly introduced.
func (e *Engine) decodeValue(wireValue any) (any, error) {
	d := &serialize.Deserializer{Classes: e.Classes}
	// Pass1 rejects a bare reference as a tree root, so wireValue is
	// decoded as the only item of a holder sequence: a bare reference (an
	// already-linked object written into a new slot) then becomes an
	// ordinary slot placeholder.
	holder, phs, err := d.Pass1([]any{wireValue})
	if err != nil {
		return nil, err
	}
	items := holder.(*classify.Sequence).Items
	if items[0] == nil && len(phs) == 1 {
		// A bare reference has no subtree of its own to search first.
		if v, ok := e.lookupExternal(phs[0].Path); ok {
			return v, nil
		}
		return nil, memerrors.Integrity(&memerrors.ReferenceError{Path: []string(phs[0].Path)}, "resolving reference")
	}
	resolver := &serialize.EventValueResolver{LocalRoot: items[0], External: e.lookupExternal}
	if err := serialize.ResolvePlaceholders(phs, resolver); err != nil {
		return nil, err
	}
	return items[0], nil
}

// decodeAt decodes wireValue and registers it, and any containers
// nested within it, at path at.
func (e *Engine) decodeAt(wireValue any, at path.Path) (any, error) {
	v, err := e.decodeValue(wireValue)
	if err != nil {
		return nil, err
	}
	e.register(v, at)
	return v, nil
}

func (e *Engine) lookupExternal(p path.Path) (any, bool) {
	v, ok := e.index[p.String()]
	return v, ok
}

// decodeItemsAt decodes a list of independently-encoded items. base is
// the index the first item occupies; successive items occupy base+1,
// base+2, and so on. base < 0 means the items are not new slots at all
// (sequence.sort), so no registration path is meaningful and each item
// is decoded with decodeValue instead.
func (e *Engine) decodeItemsAt(wireItems any, at path.Path, base int) ([]any, error) {
	list, _ := wireItems.([]any)
	out := make([]any, len(list))
	for i, wv := range list {
		if base < 0 {
			v, err := e.decodeValue(wv)
			if err != nil {
				return nil, err
			}
			out[i] = v
			continue
		}
		v, err := e.decodeAt(wv, at.Child(strconv.Itoa(base+i)))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeScriptSnapshot decodes a script event's recorded container
// state, dispatching on the target container's own kind the way
// wrap.snapshotContents encoded it.
func (e *Engine) decodeScriptSnapshot(container any, at path.Path, raw any) (any, error) {
	switch container.(type) {
	case *classify.Sequence, *classify.Set:
		return e.decodeItemsAt(raw, at, 0)
	case *classify.Dict:
		list, _ := raw.([]any)
		out := make([]any, len(list))
		for i, pair := range list {
			kv, _ := pair.([]any)
			if len(kv) != 2 {
				continue
			}
			k, err := e.decodeAt(kv[0], at.Child("k"+strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			v, err := e.decodeAt(kv[1], at.Child("v"+strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = []any{k, v}
		}
		return out, nil
	default:
		m, _ := raw.(map[string]any)
		out := make(map[string]any, len(m))
		for k, wv := range m {
			v, err := e.decodeAt(wv, at.Child(k))
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
}

// register indexes v, and every classify container nested within it,
// by the path each would occupy if the live interception layer had
// linked it there — the replay-side mirror of wrap.Graph's wrappers and
// paths tables.
func (e *Engine) register(v any, at path.Path) {
	switch t := v.(type) {
	case *classify.Record:
		e.index[at.String()] = t
		for _, k := range t.Keys() {
			cv, _ := t.Get(k)
			e.register(cv, at.Child(k))
		}
	case *classify.Sequence:
		e.index[at.String()] = t
		for i, item := range t.Items {
			e.register(item, at.Child(strconv.Itoa(i)))
		}
	case *classify.Dict:
		e.index[at.String()] = t
		for i, entry := range t.Entries() {
			e.register(entry[1], at.Child("v"+strconv.Itoa(i)))
		}
	case *classify.Set:
		e.index[at.String()] = t
		for i, item := range t.Values() {
			e.register(item, at.Child("v"+strconv.Itoa(i)))
		}
	default:
		if rl, ok := classify.AsRecordLike(v); ok {
			e.index[at.String()] = v
			for _, k := range rl.Keys() {
				cv, _ := rl.Get(k)
				e.register(cv, at.Child(k))
			}
		}
	}
}

func sequenceLen(container any) int {
	if seq, ok := container.(*classify.Sequence); ok {
		return seq.Len()
	}
	return 0
}

func setLen(container any) int {
	if s, ok := container.(*classify.Set); ok {
		return s.Len()
	}
	return 0
}

// dictIndexOf mirrors wrap's positional-path convention for map
// entries: a key's index is its current insertion-order position, which
// shifts down when an earlier key is deleted.
func dictIndexOf(d *classify.Dict, key any) int {
	if d == nil {
		return -1
	}
	for i, entry := range d.Entries() {
		if entry[0] == key {
			return i
		}
	}
	return -1
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
