// Package rules implements sharding rules for common tensor operators.
//
// Each rule derives an einsum-style axis notation for every operand from the
// operator's semantics, merges the operands' sharding proposals with
// spmd.MergeTensors and projects the merged mapping onto the outputs. Rules
// embed spmd.Base, so a direction a rule cannot support (e.g. recovering
// operand ranks that the outputs do not determine) fails with
// spmd.ErrUnimplemented instead of guessing.
//
// RegisterBuiltin registers all of them on a spmd.Registry under their
// canonical operator-type names.
package rules

import (
	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/pkg/errors"
)

// alphabet supplies the axis-notation characters shared by aligned operand
// axes.
const alphabet = "abcdefghijklmnopqrstuvwxyz"

// broadcastAxes returns the notation of a rank tensorRank tensor inside a
// broadcast of rank broadcastRank: the right-aligned suffix of alphabet, so
// the trailing axes of all operands share characters and lower-rank operands
// leave their leading (broadcast) axes to the others.
func broadcastAxes(tensorRank, broadcastRank int, alphabet string) (string, error) {
	if tensorRank > broadcastRank {
		return "", errors.Errorf("tensor rank %d exceeds the broadcast rank %d", tensorRank, broadcastRank)
	}
	if broadcastRank > len(alphabet) {
		return "", errors.Errorf("broadcast rank %d exceeds the %d available axis-notation characters",
			broadcastRank, len(alphabet))
	}
	return alphabet[broadcastRank-tensorRank : broadcastRank], nil
}

// verifySpecs checks what every rule assumes about its operands: at least one
// operand, each spec internally consistent, and all operands laid out over
// the same mesh -- by reference, layouts over distinct meshes cannot be
// merged.
func verifySpecs(op string, specs []distributed.DistTensorSpec) error {
	if len(specs) == 0 {
		return errors.Errorf("%s: no operand specs given", op)
	}
	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return errors.WithMessagef(err, "%s: operand #%d", op, i)
		}
		if spec.Mesh() != specs[0].Mesh() {
			return errors.Errorf("%s: operand #%d is distributed over mesh %q but operand #0 over %q, all operands must share one mesh",
				op, i, spec.Mesh().Name(), specs[0].Mesh().Name())
		}
	}
	return nil
}

// deriveAttr derives an inferred tensor's attribute from src (see
// spmd.DeriveOutputAttr) and fills in its dims mapping. DynamicDims is
// dropped when the inferred rank differs from src's rank, since the per-axis
// flags no longer line up.
func deriveAttr(src distributed.TensorDistAttr, dimsMapping []int) distributed.TensorDistAttr {
	attr := spmd.DeriveOutputAttr(src)
	attr.DimsMapping = dimsMapping
	if len(attr.DynamicDims) != len(dimsMapping) {
		attr.DynamicDims = nil
	}
	return attr
}

// RegisterBuiltin registers the built-in rules under their canonical
// operator-type names. It fails if any name is already taken, so it must run
// before custom registrations that reuse one of these names.
func RegisterBuiltin(registry *spmd.Registry) error {
	elementwise := Elementwise{}
	reduction := Reduction{}
	for opType, rule := range map[string]spmd.Rule{
		"add":         elementwise,
		"subtract":    elementwise,
		"multiply":    elementwise,
		"divide":      elementwise,
		"maximum":     elementwise,
		"minimum":     elementwise,
		"matmul":      MatMul{},
		"reduce_sum":  reduction,
		"reduce_mean": reduction,
		"reduce_max":  reduction,
		"reduce_min":  reduction,
		"softmax":     Softmax{},
		"transpose":   Transpose{},
	} {
		if err := registry.Register(opType, rule); err != nil {
			return err
		}
	}
	return nil
}
