package rules

import (
	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/gomlx/spmd/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Reduction is the sharding rule shared by the reduction operators
// (reduce_sum, reduce_mean, reduce_max, ...). Attributes: "axes" ([]int, the
// axes to reduce, negative entries indexing from the end) and "keep_dim"
// (bool, keep reduced axes as size 1).
//
// Reducing over a sharded axis is legal: each process reduces its shard and
// the output is partial over that axis's mesh dimension, pending the
// cross-process combine scheduled by the surrounding compiler.
//
// Only the forward direction is implemented: without keep_dim the reduced
// dimensions are not recoverable from the output alone.
type Reduction struct {
	spmd.Base
}

var _ spmd.Rule = Reduction{}

// InferForward derives the output spec of a reduction.
func (Reduction) InferForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	output, partialDims, err := reductionForward(inputs, attrs)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("reduction forward: input=%s output=%s, partial over mesh dimensions %v",
		inputs[0], output, partialDims)
	return []distributed.DistTensorSpec{output}, nil
}

// reductionForward also returns the mesh dimensions the output is partial
// over.
func reductionForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) (distributed.DistTensorSpec, []int, error) {
	var none distributed.DistTensorSpec
	if err := verifySpecs("reduction", inputs); err != nil {
		return none, nil, err
	}
	if len(inputs) != 1 {
		return none, nil, errors.Errorf("reduction takes exactly 1 operand, got %d", len(inputs))
	}
	axes, err := spmd.Attr[[]int](attrs, "axes")
	if err != nil {
		return none, nil, err
	}
	keepDim, err := spmd.Attr[bool](attrs, "keep_dim")
	if err != nil {
		return none, nil, err
	}

	input := inputs[0]
	rank := input.Rank()
	reduced := make([]bool, rank)
	for _, axis := range axes {
		normalized := axis
		if normalized < 0 {
			normalized += rank
		}
		if normalized < 0 || normalized >= rank {
			return none, nil, errors.Errorf("reduction axis %d is out of range for a rank %d operand", axis, rank)
		}
		if reduced[normalized] {
			return none, nil, errors.Errorf("reduction axis %d is given more than once", axis)
		}
		reduced[normalized] = true
	}

	inNotation, err := broadcastAxes(rank, rank, alphabet)
	if err != nil {
		return none, nil, err
	}
	var outAxes, reducedAxes []byte
	var outDims []int
	for d := range rank {
		if reduced[d] {
			reducedAxes = append(reducedAxes, inNotation[d])
			if keepDim {
				outAxes = append(outAxes, '1')
				outDims = append(outDims, 1)
			}
			continue
		}
		outAxes = append(outAxes, inNotation[d])
		outDims = append(outDims, input.Dims()[d])
	}

	merged, err := spmd.MergeTensors(spmd.TensorAxes{Notation: inNotation, DimsMapping: input.DimsMapping()})
	if err != nil {
		return none, nil, err
	}
	outMapping, err := merged.DimsMappingFor(string(outAxes), false)
	if err != nil {
		return none, nil, err
	}
	output, err := distributed.NewDistTensorSpec(
		shapes.Make(input.Shape.DType, outDims...),
		deriveAttr(input.DistAttr, outMapping))
	if err != nil {
		return none, nil, err
	}
	partialDims := spmd.ResolvePartialDims(merged, string(reducedAxes))
	return output, partialDims, nil
}
