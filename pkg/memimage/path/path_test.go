package path_test

import (
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/path"
	"github.com/stretchr/testify/assert"
)

func TestChildAndString(t *testing.T) {
	p := path.Root().Child("dept").Child("emps").Child("0")
	assert.Equal(t, "dept.emps.0", p.String())
	assert.Equal(t, 3, p.Depth())
}

func TestParent(t *testing.T) {
	p := path.Parse("dept.emps.0")
	parent, last, ok := p.Parent()
	assert.True(t, ok)
	assert.Equal(t, "0", last)
	assert.Equal(t, "dept.emps", parent.String())

	_, _, ok = path.Root().Parent()
	assert.False(t, ok)
}

func TestHasPrefixAndStrip(t *testing.T) {
	p := path.Parse("a.b.c")
	prefix := path.Parse("a.b")
	assert.True(t, p.HasPrefix(prefix))

	suffix, ok := p.Strip(prefix)
	assert.True(t, ok)
	assert.Equal(t, "c", suffix.String())

	_, ok = p.Strip(path.Parse("x"))
	assert.False(t, ok)
}

func TestParseEmptyIsRoot(t *testing.T) {
	assert.True(t, path.Parse("").IsRoot())
	assert.Equal(t, "", path.Root().String())
}
