package rules

import (
	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/gomlx/spmd/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Elementwise is the sharding rule shared by the n-ary elementwise operators
// (add, multiply, maximum, ...), with right-aligned broadcasting: aligned
// operand axes must be sharded consistently, and the output is sharded like
// the operands.
//
// Size-1 operand axes are broadcast: they take the reserved notation slot '1'
// and propose no sharding, so a broadcast operand never constrains the axis
// it is broadcast over.
//
// Only the forward direction is implemented: the operand arity and ranks of
// an elementwise operator are not recoverable from its output alone.
type Elementwise struct {
	spmd.Base
}

var _ spmd.Rule = Elementwise{}

// InferForward derives the output spec of an elementwise operator from its
// operands.
func (Elementwise) InferForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	if err := verifySpecs("elementwise", inputs); err != nil {
		return nil, err
	}
	maxRank := 0
	for _, input := range inputs {
		maxRank = max(maxRank, input.Rank())
	}

	// Right-aligned notation per operand. With more than one operand, size-1
	// axes become broadcast slots.
	notations := make([]string, len(inputs))
	broadcastCount := make([]int, maxRank)
	for i, input := range inputs {
		notation, err := broadcastAxes(input.Rank(), maxRank, alphabet)
		if err != nil {
			return nil, err
		}
		if len(inputs) > 1 {
			start := maxRank - input.Rank()
			axes := []byte(notation)
			for d := range maxRank {
				if d < start {
					broadcastCount[d]++
				} else if input.Dims()[d-start] == 1 {
					broadcastCount[d]++
					axes[d-start] = '1'
				}
			}
			notation = string(axes)
		}
		notations[i] = notation
	}

	// The output covers the full broadcast rank; an axis every operand
	// broadcasts over stays size 1 and proposes nothing.
	outNotation, err := broadcastAxes(maxRank, maxRank, alphabet)
	if err != nil {
		return nil, err
	}
	outAxes := []byte(outNotation)
	for d := range maxRank {
		if broadcastCount[d] == len(inputs) {
			outAxes[d] = '1'
		}
	}
	outNotation = string(outAxes)

	outDims := make([]int, maxRank)
	for d := range outDims {
		outDims[d] = 1
	}
	for i, input := range inputs {
		start := maxRank - input.Rank()
		for d, size := range input.Dims() {
			switch {
			case outDims[start+d] == 1:
				outDims[start+d] = size
			case size != 1 && size != outDims[start+d]:
				return nil, errors.Errorf(
					"elementwise: operand #%d has dimension %d on axis %d, incompatible with the broadcast dimension %d",
					i, size, d, outDims[start+d])
			}
		}
	}

	tensors := make([]spmd.TensorAxes, len(inputs))
	for i, input := range inputs {
		tensors[i] = spmd.TensorAxes{Notation: notations[i], DimsMapping: input.DimsMapping()}
	}
	merged, err := spmd.MergeTensors(tensors...)
	if err != nil {
		return nil, err
	}
	outMapping, err := merged.DimsMappingFor(outNotation, false)
	if err != nil {
		return nil, err
	}

	output, err := distributed.NewDistTensorSpec(
		shapes.Make(inputs[0].Shape.DType, outDims...),
		deriveAttr(inputs[0].DistAttr, outMapping))
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("elementwise forward: notations=%v merged=%s output=%s", notations, merged, output)
	return []distributed.DistTensorSpec{output}, nil
}
