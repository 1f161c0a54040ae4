package spmd_test

import (
	"testing"

	"github.com/gomlx/spmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	var base spmd.Base

	_, err := base.InferForward(nil, nil)
	require.ErrorIs(t, err, spmd.ErrUnimplemented)
	assert.Contains(t, err.Error(), "InferForward")

	_, err = base.InferBackward(nil, nil)
	require.ErrorIs(t, err, spmd.ErrUnimplemented)
	assert.Contains(t, err.Error(), "InferBackward")
}

func TestAttr(t *testing.T) {
	attrs := spmd.Attributes{
		"trans_x": true,
		"axes":    []int{0, 2},
	}

	transX, err := spmd.Attr[bool](attrs, "trans_x")
	require.NoError(t, err)
	assert.True(t, transX)

	axes, err := spmd.Attr[[]int](attrs, "axes")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, axes)

	t.Run("missing", func(t *testing.T) {
		_, err := spmd.Attr[bool](attrs, "trans_y")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `operator attribute "trans_y" is missing`)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := spmd.Attr[int](attrs, "trans_x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `operator attribute "trans_x" must be a int, got bool (true)`)
	})
}
