package spmd_test

import (
	"testing"

	"github.com/gomlx/spmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePartialDims(t *testing.T) {
	t.Run("sharded contraction axis", func(t *testing.T) {
		// x[m,k] @ y[k,n] with k sharded over mesh dimension 0: every process
		// holds a partial sum of the output, pending an all-reduce over 0.
		merged, err := spmd.MergeTensors(
			spmd.TensorAxes{Notation: "mk", DimsMapping: []int{-1, 0}},
			spmd.TensorAxes{Notation: "kn", DimsMapping: []int{0, 1}},
		)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, spmd.ResolvePartialDims(merged, "k"))
	})

	t.Run("replicated contraction axis", func(t *testing.T) {
		merged, err := spmd.MergeTensors(
			spmd.TensorAxes{Notation: "mk", DimsMapping: []int{0, -1}},
			spmd.TensorAxes{Notation: "kn", DimsMapping: []int{-1, 1}},
		)
		require.NoError(t, err)
		assert.Empty(t, spmd.ResolvePartialDims(merged, "k"))
	})

	t.Run("presence test", func(t *testing.T) {
		mapping := spmd.NewAxisMapping()
		mapping.Set('i', 0)
		mapping.Set('j', -1)
		assert.Equal(t, []int{0}, spmd.ResolvePartialDims(mapping, "i"))
		assert.Empty(t, spmd.ResolvePartialDims(mapping, "j"))
	})

	t.Run("axes outside the notation are ignored", func(t *testing.T) {
		mapping := spmd.NewAxisMapping()
		mapping.Set('a', 1)
		mapping.Set('b', 0)
		mapping.Set('c', 2)
		assert.Equal(t, []int{0}, spmd.ResolvePartialDims(mapping, "b"))
	})

	t.Run("result follows the mapping insertion order", func(t *testing.T) {
		mapping := spmd.NewAxisMapping()
		mapping.Set('a', 1)
		mapping.Set('b', 0)
		assert.Equal(t, []int{1, 0}, spmd.ResolvePartialDims(mapping, "ba"))
	})

	t.Run("empty notation", func(t *testing.T) {
		mapping := spmd.NewAxisMapping()
		mapping.Set('a', 1)
		assert.Empty(t, spmd.ResolvePartialDims(mapping, ""))
	})
}
