package classreg_test

import (
	"errors"
	"testing"

	"github.com/rmurphy/memimage/pkg/memimage/classreg"
	memerrors "github.com/rmurphy/memimage/pkg/memimage/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Widget struct {
	Name        string
	initialized bool
}

func (w *Widget) Init() { w.initialized = true }

func TestRegisterAndNew(t *testing.T) {
	r := classreg.New()
	require.NoError(t, r.Register("Widget", Widget{}))
	assert.True(t, r.Has("Widget"))

	inst, err := r.New("Widget")
	require.NoError(t, err)

	w, ok := inst.(*Widget)
	require.True(t, ok)
	assert.Equal(t, "", w.Name)
	assert.False(t, w.initialized, "New must never call a constructor or initializer")
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := classreg.New()
	require.NoError(t, r.Register("Widget", Widget{}))
	err := r.Register("Widget", Widget{})
	require.Error(t, err)
	assert.ErrorIs(t, err, memerrors.ErrDuplicateClass)
}

func TestNewUnknownClassFails(t *testing.T) {
	r := classreg.New()
	_, err := r.New("Nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, memerrors.ErrUnknownClass)
}

func TestRegisterNonStructRejected(t *testing.T) {
	r := classreg.New()
	err := r.Register("NotAStruct", 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, memerrors.ErrDuplicateClass))
}
