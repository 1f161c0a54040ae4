package distributed

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Replicated is the dims-mapping entry for a tensor axis that is not sharded:
// the axis is fully duplicated on every process along every mesh dimension not
// otherwise used.
const Replicated = -1

// TensorDistAttr defines how one tensor is distributed over a ProcessMesh.
//
// The definition is per axis of the logical tensor -- and not per dimension of
// the mesh, a common confusion: DimsMapping[i] names the mesh dimension that
// shards tensor axis i, or is Replicated (-1).
//
// Example:
//
//	mesh, _ := NewProcessMesh("mesh", []int{2, 4}, []string{"dp", "mp"})
//
//	// Axis 0 (batch) sharded over mesh dimension 0 ("dp"), axis 1 replicated.
//	attr, _ := NewTensorDistAttr(mesh, []int{0, Replicated})
//
// A TensorDistAttr is treated as immutable: inference never mutates one in
// place, it derives a fresh value (see the parent package's DeriveOutputAttr).
type TensorDistAttr struct {
	// ProcessMesh is shared by reference with every other tensor distributed
	// over the same mesh; it is never deep-copied.
	ProcessMesh *ProcessMesh

	// DimsMapping has one entry per tensor axis: a mesh dimension index (>= 0)
	// or Replicated.
	DimsMapping []int

	// BatchDim is the index of the tensor axis that carries the batch, copied
	// verbatim when deriving new attributes.
	BatchDim int

	// DynamicDims marks tensor axes whose dimension is only known at run time,
	// copied verbatim when deriving new attributes. A nil slice means none.
	DynamicDims []bool

	// Annotated is true only when the layout was supplied by the user rather
	// than inferred.
	Annotated bool
}

// NewTensorDistAttr creates a TensorDistAttr for a tensor laid out over mesh
// with the given dims mapping. The mapping is cloned and validated.
func NewTensorDistAttr(mesh *ProcessMesh, dimsMapping []int) (TensorDistAttr, error) {
	attr := TensorDistAttr{
		ProcessMesh: mesh,
		DimsMapping: slices.Clone(dimsMapping),
	}
	if err := attr.Validate(); err != nil {
		return TensorDistAttr{}, err
	}
	return attr, nil
}

// Validate checks that the attribute refers to a mesh and that every dims
// mapping entry is either Replicated or a real dimension of that mesh.
func (a TensorDistAttr) Validate() error {
	if a.ProcessMesh == nil {
		return errors.New("TensorDistAttr has no ProcessMesh")
	}
	for i, dim := range a.DimsMapping {
		if dim < Replicated || dim >= a.ProcessMesh.Rank() {
			return errors.Errorf(
				"TensorDistAttr dims mapping entry %d for tensor axis %d is not a dimension of %s",
				dim, i, a.ProcessMesh)
		}
	}
	if a.DynamicDims != nil && len(a.DynamicDims) != len(a.DimsMapping) {
		return errors.Errorf("TensorDistAttr dynamic dims have %d entries, dims mapping has %d",
			len(a.DynamicDims), len(a.DimsMapping))
	}
	if a.BatchDim < 0 {
		return errors.Errorf("TensorDistAttr batch dim cannot be negative, got %d", a.BatchDim)
	}
	return nil
}

// Clone returns a copy whose slices are independent of the original. The mesh
// stays shared by reference.
func (a TensorDistAttr) Clone() TensorDistAttr {
	a.DimsMapping = slices.Clone(a.DimsMapping)
	a.DynamicDims = slices.Clone(a.DynamicDims)
	return a
}

// Equal reports whether the two attributes describe the same layout: same mesh
// (by reference), same dims mapping and same auxiliary metadata.
func (a TensorDistAttr) Equal(other TensorDistAttr) bool {
	return a.ProcessMesh == other.ProcessMesh &&
		slices.Equal(a.DimsMapping, other.DimsMapping) &&
		a.BatchDim == other.BatchDim &&
		slices.Equal(a.DynamicDims, other.DynamicDims) &&
		a.Annotated == other.Annotated
}

// IsReplicated returns true if the tensor is fully replicated, that is, no axis
// is sharded over any mesh dimension.
func (a TensorDistAttr) IsReplicated() bool {
	for _, dim := range a.DimsMapping {
		if dim != Replicated {
			return false
		}
	}
	return true
}

// String implements the fmt.Stringer interface.
func (a TensorDistAttr) String() string {
	mesh := "<nil>"
	if a.ProcessMesh != nil {
		mesh = a.ProcessMesh.Name()
	}
	s := fmt.Sprintf("TensorDistAttr(mesh=%s, dimsMapping=%v, batchDim=%d", mesh, a.DimsMapping, a.BatchDim)
	if a.DynamicDims != nil {
		s += fmt.Sprintf(", dynamicDims=%v", a.DynamicDims)
	}
	if a.Annotated {
		s += ", annotated"
	}
	return s + ")"
}
