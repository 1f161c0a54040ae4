package distributed

import (
	"fmt"

	"github.com/gomlx/spmd/types/shapes"
	"github.com/pkg/errors"
)

// DistTensorSpec pairs a tensor's shape with its distribution attribute.
//
// The surrounding compiler pass builds one per operand before invoking a
// sharding rule; rules consume them read-only and return fresh specs for the
// inferred outputs (or inputs), never mutating one in place.
type DistTensorSpec struct {
	Shape    shapes.Shape
	DistAttr TensorDistAttr
}

// NewDistTensorSpec creates a DistTensorSpec, validating that the attribute
// matches the shape: one dims mapping entry per tensor axis.
func NewDistTensorSpec(shape shapes.Shape, attr TensorDistAttr) (DistTensorSpec, error) {
	spec := DistTensorSpec{Shape: shape, DistAttr: attr}
	if err := spec.Validate(); err != nil {
		return DistTensorSpec{}, err
	}
	return spec, nil
}

// Validate checks the attribute itself and that its dims mapping length matches
// the tensor rank.
func (s DistTensorSpec) Validate() error {
	if !s.Shape.Ok() {
		return errors.Errorf("DistTensorSpec has an invalid shape %s", s.Shape)
	}
	if err := s.DistAttr.Validate(); err != nil {
		return err
	}
	if len(s.DistAttr.DimsMapping) != s.Shape.Rank() {
		return errors.Errorf("DistTensorSpec dims mapping has %d entries for a rank %d tensor %s",
			len(s.DistAttr.DimsMapping), s.Shape.Rank(), s.Shape)
	}
	return nil
}

// Rank returns the rank of the tensor.
func (s DistTensorSpec) Rank() int {
	return s.Shape.Rank()
}

// Dims returns the tensor dimensions. The returned slice is owned by the spec's
// shape and must not be modified.
func (s DistTensorSpec) Dims() []int {
	return s.Shape.Dimensions
}

// DimsMapping returns the per-axis mesh-dimension assignment. The returned
// slice is owned by the spec's attribute and must not be modified.
func (s DistTensorSpec) DimsMapping() []int {
	return s.DistAttr.DimsMapping
}

// Mesh returns the ProcessMesh the tensor is distributed over.
func (s DistTensorSpec) Mesh() *ProcessMesh {
	return s.DistAttr.ProcessMesh
}

// String implements the fmt.Stringer interface.
func (s DistTensorSpec) String() string {
	return fmt.Sprintf("DistTensorSpec(shape=%s, dimsMapping=%v)", s.Shape, s.DistAttr.DimsMapping)
}
