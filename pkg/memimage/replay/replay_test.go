package replay_test

import (
	"context"
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/eventlog"
	"github.com/rmurphy/memimage/pkg/memimage/replay"
	"github.com/rmurphy/memimage/pkg/memimage/wrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayPropertyWriteAndNestedRecord(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	root := g.Attach(classify.NewRecord(""))

	require.NoError(t, root.Set(ctx, "name", "ada"))
	child := classify.NewRecord("")
	require.NoError(t, root.Set(ctx, "child", child))
	childWrapper, ok := root.Get("child")
	require.True(t, ok)
	require.NoError(t, childWrapper.(*wrap.Wrapper).Set(ctx, "x", 42))

	result, err := replay.FromLog(ctx, log, nil, nil)
	require.NoError(t, err)

	rl, ok := classify.AsRecordLike(result)
	require.True(t, ok)
	name, ok := rl.Get("name")
	require.True(t, ok)
	assert.Equal(t, "ada", name)

	childVal, ok := rl.Get("child")
	require.True(t, ok)
	childRl, ok := classify.AsRecordLike(childVal)
	require.True(t, ok)
	x, ok := childRl.Get("x")
	require.True(t, ok)
	assert.Equal(t, 42, x)
}

func TestReplaySequencePushSplice(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	root := g.Attach(classify.NewSequence())

	require.NoError(t, root.Push(ctx, "a", "b", "c"))
	_, err := root.Splice(ctx, 1, 1, "x", "y")
	require.NoError(t, err)

	result, err := replay.FromLog(ctx, log, classify.NewSequence(), nil)
	require.NoError(t, err)

	seq, ok := result.(*classify.Sequence)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "x", "y", "c"}, seq.Items)
}

func TestReplaySequenceSortPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	root := g.Attach(classify.NewSequence())

	item := classify.NewRecord("")
	require.NoError(t, root.Push(ctx, 3, item, 1))

	require.NoError(t, root.SortBy(ctx, func(a, b any) bool {
		rank := func(v any) int {
			v = wrap.Unwrap(v)
			if n, ok := v.(int); ok {
				return n
			}
			return 2
		}
		return rank(a) < rank(b)
	}))

	result, err := replay.FromLog(ctx, log, classify.NewSequence(), nil)
	require.NoError(t, err)

	seq, ok := result.(*classify.Sequence)
	require.True(t, ok)
	require.Len(t, seq.Items, 3)
	assert.Equal(t, 1, seq.Items[0])
	_, isRecord := seq.Items[1].(*classify.Record)
	assert.True(t, isRecord)
	assert.Equal(t, 3, seq.Items[2])
}

func TestReplayMapSetDelete(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)

	dictRoot := g.Attach(classify.NewDict())
	require.NoError(t, dictRoot.MapSet(ctx, "k1", "v1"))
	require.NoError(t, dictRoot.MapSet(ctx, "k2", "v2"))
	require.NoError(t, dictRoot.MapDelete(ctx, "k1"))

	result, err := replay.FromLog(ctx, log, classify.NewDict(), nil)
	require.NoError(t, err)

	dd, ok := result.(*classify.Dict)
	require.True(t, ok)
	assert.Equal(t, [][2]any{{"k2", "v2"}}, dd.Entries())
}

func TestReplaySetAddRemove(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)

	setRoot := g.Attach(classify.NewSet())
	require.NoError(t, setRoot.Add(ctx, "x"))
	require.NoError(t, setRoot.Add(ctx, "y"))
	require.NoError(t, setRoot.Remove(ctx, "x"))

	result, err := replay.FromLog(ctx, log, classify.NewSet(), nil)
	require.NoError(t, err)

	ss, ok := result.(*classify.Set)
	require.True(t, ok)
	assert.Equal(t, []any{"y"}, ss.Values())
}

func TestReplayExternalReferencePreservesIdentity(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	people := g.Attach(classify.NewRecord(""))

	alice := classify.NewRecord("")
	require.NoError(t, people.Set(ctx, "alice", alice))
	aliceWrapper, ok := people.Get("alice")
	require.True(t, ok)

	bob := classify.NewRecord("")
	require.NoError(t, people.Set(ctx, "bob", bob))
	bobWrapper, ok := people.Get("bob")
	require.True(t, ok)
	require.NoError(t, bobWrapper.(*wrap.Wrapper).Set(ctx, "friend", aliceWrapper))

	result, err := replay.FromLog(ctx, log, nil, nil)
	require.NoError(t, err)

	rl, ok := classify.AsRecordLike(result)
	require.True(t, ok)
	resultAlice, ok := rl.Get("alice")
	require.True(t, ok)
	resultBob, ok := rl.Get("bob")
	require.True(t, ok)

	bobRl, ok := classify.AsRecordLike(resultBob)
	require.True(t, ok)
	friend, ok := bobRl.Get("friend")
	require.True(t, ok)

	assert.Same(t, resultAlice, friend)
}

func TestReplayScriptSnapshot(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemoryLog()
	g := wrap.New(log)
	root := g.Attach(classify.NewSequence("a", "b"))

	require.NoError(t, root.Script(ctx, func(target any) error {
		seq := target.(*classify.Sequence)
		seq.Items = append(seq.Items, "c")
		return nil
	}))

	result, err := replay.FromStream(ctx, log, classify.NewSequence(), nil)
	require.NoError(t, err)

	seq, ok := result.(*classify.Sequence)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, seq.Items)
}
