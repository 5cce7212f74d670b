package serialize_test

import (
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/classify"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/rmurphy/memimage/pkg/memimage/serialize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializePrimitives(t *testing.T) {
	v, err := serialize.Serialize("hello", serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	v, err = serialize.Serialize(nil, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = serialize.Serialize(classify.Undefined, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{serialize.TypeKey: serialize.TagAbsent}, v)
}

func TestSerializeRecordPreservesKeyOrder(t *testing.T) {
	r := classify.NewRecord("")
	r.Set("b", 1)
	r.Set("a", 2)

	v, err := serialize.Serialize(r, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)

	m := v.(map[string]any)
	order := m[serialize.KeysKey].([]any)
	assert.Equal(t, []any{"b", "a"}, order)
}

func TestSnapshotRoundTripWithCycle(t *testing.T) {
	root := classify.NewRecord("")
	child := classify.NewRecord("")
	root.Set("child", child)
	child.Set("parent", root)

	tree, err := serialize.Serialize(root, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)

	rebuilt, err := serialize.Deserialize(tree, nil)
	require.NoError(t, err)

	rr := rebuilt.(*classify.Record)
	c, ok := rr.Get("child")
	require.True(t, ok)
	rc := c.(*classify.Record)
	p, ok := rc.Get("parent")
	require.True(t, ok)
	assert.Same(t, rr, p.(*classify.Record))
}

func TestSequenceAndSetRoundTrip(t *testing.T) {
	seq := classify.NewSequence(int64(1), "two", int64(3))
	tree, err := serialize.Serialize(seq, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)

	rebuilt, err := serialize.Deserialize(tree, nil)
	require.NoError(t, err)
	rs := rebuilt.(*classify.Sequence)
	assert.Equal(t, []any{int64(1), "two", int64(3)}, rs.Items)

	set := classify.NewSet()
	set.Add("x")
	set.Add("y")
	tree, err = serialize.Serialize(set, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	rebuilt, err = serialize.Deserialize(tree, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"x", "y"}, rebuilt.(*classify.Set).Values())
}

func TestDictRoundTrip(t *testing.T) {
	d := classify.NewDict()
	d.Set("k1", "v1")
	d.Set("k2", "v2")

	tree, err := serialize.Serialize(d, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)

	rebuilt, err := serialize.Deserialize(tree, nil)
	require.NoError(t, err)
	rd := rebuilt.(*classify.Dict)
	assert.Equal(t, 2, rd.Len())
	v, ok := rd.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

type stubScope struct {
	paths map[any]path.Path
}

func (s stubScope) PathOf(v any) (path.Path, bool) {
	p, ok := s.paths[v]
	return p, ok
}

func TestEventValueModeLocalAndExternalScope(t *testing.T) {
	existing := classify.NewRecord("")
	existing.Set("name", "shared")

	newValue := classify.NewRecord("")
	newValue.Set("existing", existing)

	selfRef := classify.NewRecord("")
	newValue.Set("self", selfRef)
	selfRef.Set("back", newValue)

	scope := stubScope{paths: map[any]path.Path{existing: path.Parse("pool.items.3")}}
	tree, err := serialize.Serialize(newValue, serialize.ModeEventValue, path.Root(), serialize.Options{External: scope})
	require.NoError(t, err)

	m := tree.(map[string]any)
	existingRef := m["existing"].(map[string]any)
	assert.Equal(t, serialize.TagRef, existingRef[serialize.TypeKey])
	assert.Equal(t, []string{"pool", "items", "3"}, existingRef[serialize.RefPathKey])

	selfRefVal := m["self"].(map[string]any)
	backRef := selfRefVal["back"].(map[string]any)
	assert.Equal(t, []string{}, backRef[serialize.RefPathKey])

	d := &serialize.Deserializer{}
	root, phs, err := d.Pass1(tree)
	require.NoError(t, err)

	var externalLookups int
	resolver := &serialize.EventValueResolver{
		LocalRoot: root,
		External: func(p path.Path) (any, bool) {
			externalLookups++
			assert.Equal(t, "pool.items.3", p.String())
			return existing, true
		},
	}
	require.NoError(t, serialize.ResolvePlaceholders(phs, resolver))
	assert.Equal(t, 1, externalLookups)

	rr := root.(*classify.Record)
	ex, _ := rr.Get("existing")
	assert.Same(t, existing, ex.(*classify.Record))

	self, _ := rr.Get("self")
	back, _ := self.(*classify.Record).Get("back")
	assert.Same(t, rr, back.(*classify.Record))
}

func TestBigIntSymbolAndFuncWireForm(t *testing.T) {
	fn := classify.Func{SourceCode: "() => 1"}
	v, err := serialize.Serialize(fn, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{serialize.TypeKey: serialize.TagFunction, serialize.FunctionSourceKey: "() => 1"}, v)

	sym := classify.NewSymbol("tag")
	v, err = serialize.Serialize(sym, serialize.ModeSnapshot, path.Root(), serialize.Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{serialize.TypeKey: serialize.TagSymbol, "description": "tag"}, v)
}
