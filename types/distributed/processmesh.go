// Package distributed provides the value types that describe how tensors are laid
// out over a mesh of processes: ProcessMesh, TensorDistAttr and DistTensorSpec.
//
// These are the inputs and outputs of the sharding-propagation engine in the
// parent package: a ProcessMesh is the logical grid of processes a program is
// partitioned over, a TensorDistAttr records how one tensor's axes map onto that
// grid, and a DistTensorSpec pairs the attribute with the tensor's shape.
package distributed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/spmd/internal/utils"
	"github.com/pkg/errors"
)

// ProcessMesh defines the logical topology of the set of processes a program is
// partitioned over: an N-dimensional grid, each dimension with a size and a name.
//
// A mesh is immutable once constructed (except for the optional process-id
// assignment) and is shared by reference among all tensors distributed over it.
type ProcessMesh struct {
	name string

	// dimNames are the names of the mesh dimensions, e.g. "dp", "mp".
	dimNames []string

	// dimSizes defines the number of processes along each mesh dimension.
	dimSizes []int

	// nameToDim maps dimension names to their index.
	nameToDim map[string]int

	// numProcesses is the total number of processes in the mesh.
	numProcesses int

	// processIDs is the list of global process ids assigned to the mesh
	// coordinates in row-major order, or nil for the default 0..numProcesses-1.
	processIDs []int64
}

// DefaultMeshName is used when callers have a single mesh and no better name.
const DefaultMeshName = "mesh"

// IsValidDimName checks whether a name is a valid identifier for a mesh name or
// mesh dimension name: an ASCII letter or underscore followed by letters, digits
// or underscores.
func IsValidDimName(name string) bool {
	if name == "" {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

// NewProcessMesh creates a new logical grid of processes.
//
//   - name: the name of the mesh, a valid identifier (see IsValidDimName).
//   - dimSizes: the number of processes along each mesh dimension, one value per
//     dimension, each at least 1.
//   - dimNames: the names of the mesh dimensions, one per dimension, unique valid
//     identifiers.
//
// The default assignment of global process ids to mesh coordinates is sequential,
// starting from 0; it can be changed with ProcessMesh.SetProcessIDs.
func NewProcessMesh(name string, dimSizes []int, dimNames []string) (*ProcessMesh, error) {
	if len(dimSizes) != len(dimNames) {
		return nil, errors.Errorf("dimSizes and dimNames must have the same length, got %d and %d",
			len(dimSizes), len(dimNames))
	}
	if len(dimSizes) == 0 {
		return nil, errors.New("ProcessMesh dimSizes cannot be empty")
	}
	if !IsValidDimName(name) {
		return nil, errors.Errorf(
			"ProcessMesh name %q is not a valid identifier, it must start with an ASCII letter "+
				"and be followed only by letters, digits or underscores", name)
	}

	dimNames = slices.Clone(dimNames)
	dimSizes = slices.Clone(dimSizes)
	numProcesses := 1
	nameToDim := make(map[string]int, len(dimSizes))
	for i, dimName := range dimNames {
		if !IsValidDimName(dimName) {
			return nil, errors.Errorf(
				"ProcessMesh dimension name %q at index %d is not a valid identifier, it must start "+
					"with an ASCII letter and be followed only by letters, digits or underscores", dimName, i)
		}
		if _, found := nameToDim[dimName]; found {
			return nil, errors.Errorf("ProcessMesh dimension name %q is duplicated", dimName)
		}
		if dimSizes[i] < 1 {
			return nil, errors.Errorf("ProcessMesh dimension %q must have size >= 1, got %d",
				dimName, dimSizes[i])
		}
		nameToDim[dimName] = i
		numProcesses *= dimSizes[i]
	}

	m := &ProcessMesh{
		name:         name,
		dimNames:     dimNames,
		dimSizes:     dimSizes,
		nameToDim:    nameToDim,
		numProcesses: numProcesses,
	}
	return m, nil
}

func (m *ProcessMesh) Name() string {
	return m.name
}

// NumProcesses returns the total number of processes in the mesh.
func (m *ProcessMesh) NumProcesses() int {
	return m.numProcesses
}

// Rank returns the number of dimensions of the mesh.
func (m *ProcessMesh) Rank() int {
	return len(m.dimSizes)
}

// DimNames returns a copy of the mesh's dimension names.
func (m *ProcessMesh) DimNames() []string {
	return slices.Clone(m.dimNames)
}

// DimSizes returns a copy of the mesh's dimension sizes.
func (m *ProcessMesh) DimSizes() []int {
	return slices.Clone(m.dimSizes)
}

// DimSize returns the number of processes along the named mesh dimension.
func (m *ProcessMesh) DimSize(dimName string) (int, error) {
	idx, found := m.nameToDim[dimName]
	if !found {
		return 0, errors.Errorf("mesh dimension %q not found", dimName)
	}
	return m.dimSizes[idx], nil
}

// DimIndex returns the index of the named mesh dimension, the value a tensor's
// dims mapping uses to refer to it.
func (m *ProcessMesh) DimIndex(dimName string) (int, error) {
	idx, found := m.nameToDim[dimName]
	if !found {
		return 0, errors.Errorf("mesh dimension %q not found", dimName)
	}
	return idx, nil
}

// String implements the fmt.Stringer interface.
func (m *ProcessMesh) String() string {
	var sb strings.Builder
	sb.WriteString("ProcessMesh(")
	sb.WriteString(m.name)
	sb.WriteString(", dims={")
	for i, name := range m.dimNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %d", name, m.dimSizes[i])
	}
	sb.WriteString("})")
	return sb.String()
}

// SetProcessIDs sets the assignment of global process ids to the mesh
// coordinates, in row-major order.
//
// The length of ids must be equal to NumProcesses() and the ids must be
// distinct. They are global ranks, so they need not fall in [0, NumProcesses()).
// Calling it with no arguments restores the default sequential assignment.
func (m *ProcessMesh) SetProcessIDs(ids ...int64) error {
	if len(ids) == 0 {
		m.processIDs = nil
		return nil
	}
	if len(ids) != m.numProcesses {
		return errors.Errorf("ids must have %d elements (NumProcesses()), got %d", m.numProcesses, len(ids))
	}
	seen := utils.MakeSet[int64](m.numProcesses)
	for _, id := range ids {
		if seen.Has(id) {
			return errors.Errorf("process id %d is duplicated in assignment", id)
		}
		seen.Insert(id)
	}
	m.processIDs = slices.Clone(ids)
	return nil
}

// ProcessIDs returns the global process ids assigned to the mesh coordinates, in
// row-major order.
//
// If no assignment was set with SetProcessIDs, it returns the default sequential
// assignment 0..NumProcesses()-1.
func (m *ProcessMesh) ProcessIDs() []int64 {
	if m.processIDs == nil {
		ids := make([]int64, m.numProcesses)
		for i := range ids {
			ids[i] = int64(i)
		}
		return ids
	}
	return slices.Clone(m.processIDs)
}
