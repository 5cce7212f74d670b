package delta_test

import (
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/delta"
	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	m := delta.New()
	p := path.Parse("a.b")

	assert.False(t, m.Has(p))

	m.Set(p, 42)
	v, ok := m.Get(p)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, m.Size())

	m.Delete(p)
	v, ok = m.Get(p)
	require.True(t, ok)
	assert.True(t, delta.IsDeleted(v))
}

func TestCheckpointAndRestore(t *testing.T) {
	m := delta.New()
	m.Set(path.Parse("x"), 1)
	cp := m.Checkpoint()

	m.Set(path.Parse("y"), 2)
	assert.Equal(t, 2, m.Size())

	m.Restore(cp)
	assert.Equal(t, 1, m.Size())
	_, ok := m.Get(path.Parse("y"))
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	m := delta.New()
	m.Set(path.Parse("x"), 1)
	m.Clear()
	assert.Equal(t, 0, m.Size())
}

func TestEntriesDepthOrdered(t *testing.T) {
	m := delta.New()
	m.Set(path.Parse("a.b.c"), 3)
	m.Set(path.Parse("a"), 1)
	m.Set(path.Parse("a.b"), 2)

	entries := m.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Path.String())
	assert.Equal(t, "a.b", entries[1].Path.String())
	assert.Equal(t, "a.b.c", entries[2].Path.String())
}
