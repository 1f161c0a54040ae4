package spmd

import (
	"slices"

	"github.com/gomlx/spmd/types/distributed"
)

// DeriveOutputAttr creates the distribution attribute of an inferred tensor
// from the attribute of a source operand (usually the operator's first). The
// ProcessMesh carries over by reference (meshes are shared, never copied), and
// BatchDim and DynamicDims are copied verbatim. Annotated is false regardless
// of the source: an inferred layout is never treated as user-supplied.
//
// DimsMapping is left nil; the calling rule fills it in from the merge result,
// typically with AxisMapping.DimsMappingFor.
func DeriveOutputAttr(src distributed.TensorDistAttr) distributed.TensorDistAttr {
	return distributed.TensorDistAttr{
		ProcessMesh: src.ProcessMesh,
		BatchDim:    src.BatchDim,
		DynamicDims: slices.Clone(src.DynamicDims),
	}
}
