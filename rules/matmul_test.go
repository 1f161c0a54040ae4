package rules

import (
	"testing"

	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matmulAttrs(transX, transY bool) spmd.Attributes {
	return spmd.Attributes{"trans_x": transX, "trans_y": transY}
}

func TestMatMul(t *testing.T) {
	mesh := newMesh(t)
	rule := MatMul{}

	t.Run("data parallel", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, -1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{8, 6}, output.Dims())
		assert.Equal(t, []int{0, -1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("row and column parallel", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("sharded contraction makes the output partial", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{-1, 0})
		y := newSpec(t, mesh, []int{4, 6}, []int{0, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{-1, 1}, output.DimsMapping())
		assert.Equal(t, []int{0}, partialDims)
	})

	t.Run("contraction sharded on one side only", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{-1, 0})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, -1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{-1, -1}, output.DimsMapping())
		assert.Equal(t, []int{0}, partialDims)
	})

	t.Run("batched against a plain matrix", func(t *testing.T) {
		x := newSpec(t, mesh, []int{5, 8, 4}, []int{0, -1, -1})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{5, 8, 6}, output.Dims())
		assert.Equal(t, []int{0, -1, 1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("batch dimensions broadcast", func(t *testing.T) {
		x := newSpec(t, mesh, []int{1, 8, 4}, []int{-1, 0, -1})
		y := newSpec(t, mesh, []int{5, 4, 6}, []int{-1, -1, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{5, 8, 6}, output.Dims())
		assert.Equal(t, []int{-1, 0, 1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("trans_x swaps the trailing axes", func(t *testing.T) {
		// x is stored contraction-major: x^T has shape [8, 4] sharded {0, -1}.
		x := newSpec(t, mesh, []int{4, 8}, []int{-1, 0})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(true, false))
		require.NoError(t, err)
		assert.Equal(t, []int{8, 6}, output.Dims())
		assert.Equal(t, []int{0, 1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("trans_y swaps the trailing axes", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{6, 4}, []int{1, -1})
		output, _, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, true))
		require.NoError(t, err)
		assert.Equal(t, []int{8, 6}, output.Dims())
		assert.Equal(t, []int{0, 1}, output.DimsMapping())
	})

	t.Run("vector times vector", func(t *testing.T) {
		x := newSpec(t, mesh, []int{4}, []int{0})
		y := newSpec(t, mesh, []int{4}, []int{0})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, 0, output.Rank())
		assert.Empty(t, output.DimsMapping())
		assert.Equal(t, []int{0}, partialDims)
	})

	t.Run("vector times matrix", func(t *testing.T) {
		x := newSpec(t, mesh, []int{4}, []int{-1})
		y := newSpec(t, mesh, []int{4, 6}, []int{0, 1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{6}, output.Dims())
		assert.Equal(t, []int{1}, output.DimsMapping())
		assert.Equal(t, []int{0}, partialDims)
	})

	t.Run("matrix times vector", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{4}, []int{-1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{8}, output.Dims())
		assert.Equal(t, []int{0}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("mesh dimension contention within one operand", func(t *testing.T) {
		// Both axes of x claim mesh dimension 0; m was recorded first and
		// keeps it, the contraction axis falls back to replicated.
		x := newSpec(t, mesh, []int{8, 4}, []int{0, 0})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, -1})
		output, partialDims, err := matmulForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		assert.Equal(t, []int{0, -1}, output.DimsMapping())
		assert.Empty(t, partialDims)
	})

	t.Run("errors", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, 1})
		vector := newSpec(t, mesh, []int{4}, []int{-1})

		_, _, err := matmulForward([]distributed.DistTensorSpec{x}, matmulAttrs(false, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matmul takes exactly 2 operands")

		scalar := newSpec(t, mesh, nil, nil)
		_, _, err = matmulForward([]distributed.DistTensorSpec{scalar, y}, matmulAttrs(false, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matmul operands cannot be scalar")

		_, _, err = matmulForward([]distributed.DistTensorSpec{x, y}, spmd.Attributes{"trans_x": false})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `operator attribute "trans_y" is missing`)

		_, _, err = matmulForward([]distributed.DistTensorSpec{vector, y}, matmulAttrs(true, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trans_x requires x of rank >= 2")

		wrongK := newSpec(t, mesh, []int{5, 6}, []int{-1, -1})
		_, _, err = matmulForward([]distributed.DistTensorSpec{x, wrongK}, matmulAttrs(false, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "contraction dimensions do not match: x has 4, y has 5")

		xBatch := newSpec(t, mesh, []int{2, 8, 4}, []int{-1, -1, -1})
		yBatch := newSpec(t, mesh, []int{3, 4, 6}, []int{-1, -1, -1})
		_, _, err = matmulForward([]distributed.DistTensorSpec{xBatch, yBatch}, matmulAttrs(false, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch dimensions do not broadcast")
	})

	t.Run("rule returns one output", func(t *testing.T) {
		x := newSpec(t, mesh, []int{8, 4}, []int{0, -1})
		y := newSpec(t, mesh, []int{4, 6}, []int{-1, 1})
		outputs, err := rule.InferForward([]distributed.DistTensorSpec{x, y}, matmulAttrs(false, false))
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, []int{0, 1}, outputs[0].DimsMapping())
	})
}
