package spmd

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TensorAxes pairs one operand's axis notation with its dims mapping: one
// notation byte and one mapping entry per tensor axis.
//
// The notation is an einsum-style string such as "ij" for a rank-2 tensor. Two
// operands sharing a character at corresponding positions assert "this is the
// same logical axis". The byte '1' is reserved for size-one broadcast slots: it
// never proposes (or receives) a sharding.
type TensorAxes struct {
	Notation    string
	DimsMapping []int
}

// AxisMapping maps axis-notation characters to the mesh dimension (or -1,
// replicated) they have been merged to. It preserves insertion order, so
// contention tie-breaks and String output are reproducible across runs and
// platforms.
//
// Build one with MergeTensors, or with NewAxisMapping and Set.
type AxisMapping struct {
	order []byte
	dims  map[byte]int
}

// NewAxisMapping returns an empty AxisMapping.
func NewAxisMapping() *AxisMapping {
	return &AxisMapping{dims: make(map[byte]int)}
}

// Set records the mesh dimension for an axis. The first Set of an axis fixes
// its position in the insertion order; later Sets overwrite the dimension only.
func (m *AxisMapping) Set(axis byte, dim int) {
	if _, found := m.dims[axis]; !found {
		m.order = append(m.order, axis)
	}
	m.dims[axis] = dim
}

// Dim returns the mesh dimension recorded for an axis and whether the axis is
// present.
func (m *AxisMapping) Dim(axis byte) (int, bool) {
	dim, found := m.dims[axis]
	return dim, found
}

// Len returns the number of axes in the mapping.
func (m *AxisMapping) Len() int {
	return len(m.order)
}

// Axes returns a copy of the axis characters in insertion order.
func (m *AxisMapping) Axes() []byte {
	return slices.Clone(m.order)
}

// String implements the fmt.Stringer interface, listing axes in insertion
// order, e.g. "{i:0, j:-1, k:1}".
func (m *AxisMapping) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, axis := range m.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte(axis)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(m.dims[axis]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// DimsMappingFor projects the mapping back onto one tensor's axis notation,
// returning the dims mapping for that tensor. The reserved axis '1' always
// yields -1. An axis missing from the mapping yields -1 when unshardedMissing
// is true and an error otherwise.
func (m *AxisMapping) DimsMappingFor(notation string, unshardedMissing bool) ([]int, error) {
	dims := make([]int, len(notation))
	for i := range len(notation) {
		axis := notation[i]
		if axis == '1' {
			dims[i] = -1
			continue
		}
		dim, found := m.dims[axis]
		if !found {
			if !unshardedMissing {
				return nil, errors.Errorf("axis %q of notation %q is not in the axis mapping %s",
					string(axis), notation, m)
			}
			dims[i] = -1
			continue
		}
		dims[i] = dim
	}
	return dims, nil
}

// MergeAxis merges two candidate mesh-dimension assignments proposed for the
// same logical axis by two different tensors:
//
//   - equal proposals (including both -1) keep that value;
//   - a sharded proposal (>= 0) wins over a replicated one (-1);
//   - two different sharded proposals cannot be reconciled and fail with a
//     *ShardingConflictError naming the axis and both dimensions.
func MergeAxis(axis string, dim1, dim2 int) (int, error) {
	if dim1 == dim2 {
		return dim1, nil
	}
	if dim1 == -1 {
		return dim2, nil
	}
	if dim2 == -1 {
		return dim1, nil
	}
	return 0, errors.WithStack(&ShardingConflictError{Axis: axis, Dim1: dim1, Dim2: dim2})
}

// dimClaims is the inverse map built during MergeTensors: for each mesh
// dimension, the axes assigned to it, everything in first-recorded order.
type dimClaims struct {
	order  []int
	claims map[int][]byte
}

func newDimClaims() *dimClaims {
	return &dimClaims{claims: make(map[int][]byte)}
}

func (c *dimClaims) add(dim int, axis byte) {
	axes, seen := c.claims[dim]
	if !seen {
		c.order = append(c.order, dim)
	}
	if slices.Contains(axes, axis) {
		return
	}
	c.claims[dim] = append(axes, axis)
}

// MergeTensors merges the per-axis mesh-dimension assignments of all operands
// of an operator into a single axis mapping.
//
// Operands are processed in argument order, and axes within an operand in
// notation order; that order is significant: when one mesh dimension ends up
// claimed by more than one axis, the first-recorded axis keeps it and every
// other claimant is demoted to replicated (-1). Demotions are diagnostics, not
// errors; they are logged at verbosity 4.
//
// Two operands proposing different sharded dimensions for the same axis is an
// unresolvable conflict: the call fails with *ShardingConflictError (see
// MergeAxis) and no mapping is returned.
func MergeTensors(tensors ...TensorAxes) (*AxisMapping, error) {
	merged := NewAxisMapping()
	inverse := newDimClaims()
	for tensorIdx, tensor := range tensors {
		if len(tensor.Notation) != len(tensor.DimsMapping) {
			return nil, errors.Errorf(
				"tensor #%d: notation %q has %d axes but dims mapping %v has %d entries",
				tensorIdx, tensor.Notation, len(tensor.Notation), tensor.DimsMapping, len(tensor.DimsMapping))
		}
		for i := range len(tensor.Notation) {
			axis := tensor.Notation[i]
			if axis == '1' {
				// Size-one broadcast slot, proposes nothing.
				continue
			}
			dim := tensor.DimsMapping[i]
			if prev, seen := merged.Dim(axis); seen {
				mergedDim, err := MergeAxis(string(axis), prev, dim)
				if err != nil {
					return nil, err
				}
				merged.Set(axis, mergedDim)
				dim = mergedDim
			} else {
				merged.Set(axis, dim)
			}
			if dim >= 0 {
				inverse.add(dim, axis)
			}
		}
	}

	// A mesh dimension may shard at most one tensor axis: resolve contention by
	// keeping the first-recorded axis and demoting the rest to replicated.
	for _, dim := range inverse.order {
		axes := inverse.claims[dim]
		if len(axes) <= 1 {
			continue
		}
		for _, axis := range axes[1:] {
			merged.Set(axis, -1)
		}
		klog.V(4).Infof("sharding merge: mesh dimension %d is claimed by tensor axes %q; keeping %q and demoting the others to replicated",
			dim, string(axes), string(axes[0]))
	}
	return merged, nil
}
