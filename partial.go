package spmd

import "strings"

// ResolvePartialDims returns the mesh dimensions a tensor is partial over:
// along those dimensions each process holds only a partial contribution (e.g.
// a partial sum), pending a reduction collective scheduled elsewhere.
//
// It scans the merged mapping in insertion order and collects the mesh
// dimension of every axis that appears in notation and is sharded (>= 0). A
// mapping produced by MergeTensors shards each mesh dimension at most once, so
// the result has no duplicates.
//
// The test is membership of the axis in notation, so rules resolving the
// partial dimensions of a contraction pass the notation of the axes that are
// summed away ("k" for matmul, the reduced axes of a reduction), not the
// notation of the surviving output axes.
func ResolvePartialDims(mapping *AxisMapping, notation string) []int {
	var partialDims []int
	for _, axis := range mapping.order {
		dim := mapping.dims[axis]
		if dim < 0 {
			continue
		}
		if strings.IndexByte(notation, axis) < 0 {
			continue
		}
		partialDims = append(partialDims, dim)
	}
	return partialDims
}
