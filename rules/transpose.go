package rules

import (
	"slices"

	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/gomlx/spmd/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Transpose is the sharding rule for axis permutation (attribute "perm",
// []int, a permutation of the tensor axes, negative entries indexing from the
// end): sharding travels with the axes it is attached to.
//
// Both directions are implemented; the backward inference applies the inverse
// permutation.
type Transpose struct {
	spmd.Base
}

var _ spmd.Rule = Transpose{}

// InferForward derives the output spec from the operand's: output axis i is
// operand axis perm[i].
func (Transpose) InferForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	if err := verifySpecs("transpose", inputs); err != nil {
		return nil, err
	}
	if len(inputs) != 1 {
		return nil, errors.Errorf("transpose takes exactly 1 spec, got %d", len(inputs))
	}
	input := inputs[0]
	rank := input.Rank()
	perm, err := transposePerm(attrs, rank)
	if err != nil {
		return nil, err
	}
	inNotation, err := broadcastAxes(rank, rank, alphabet)
	if err != nil {
		return nil, err
	}

	outAxes := make([]byte, rank)
	outDims := make([]int, rank)
	for i, p := range perm {
		outAxes[i] = inNotation[p]
		outDims[i] = input.Dims()[p]
	}

	merged, err := spmd.MergeTensors(spmd.TensorAxes{Notation: inNotation, DimsMapping: input.DimsMapping()})
	if err != nil {
		return nil, err
	}
	outMapping, err := merged.DimsMappingFor(string(outAxes), false)
	if err != nil {
		return nil, err
	}

	attr := deriveAttr(input.DistAttr, outMapping)
	if attr.DynamicDims != nil {
		// The per-axis flags travel with their axes.
		permuted := make([]bool, rank)
		for i, p := range perm {
			permuted[i] = attr.DynamicDims[p]
		}
		attr.DynamicDims = permuted
	}
	output, err := distributed.NewDistTensorSpec(shapes.Make(input.Shape.DType, outDims...), attr)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("transpose forward: perm=%v in=%q%v out=%q%v",
		perm, inNotation, input.DimsMapping(), string(outAxes), outMapping)
	return []distributed.DistTensorSpec{output}, nil
}

// InferBackward derives the operand's spec from the output's, undoing the
// permutation: operand axis perm[i] is output axis i.
func (Transpose) InferBackward(outputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	if err := verifySpecs("transpose", outputs); err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, errors.Errorf("transpose takes exactly 1 spec, got %d", len(outputs))
	}
	output := outputs[0]
	rank := output.Rank()
	perm, err := transposePerm(attrs, rank)
	if err != nil {
		return nil, err
	}
	inNotation, err := broadcastAxes(rank, rank, alphabet)
	if err != nil {
		return nil, err
	}

	outAxes := make([]byte, rank)
	inDims := make([]int, rank)
	for i, p := range perm {
		outAxes[i] = inNotation[p]
		inDims[p] = output.Dims()[i]
	}

	merged, err := spmd.MergeTensors(spmd.TensorAxes{Notation: string(outAxes), DimsMapping: output.DimsMapping()})
	if err != nil {
		return nil, err
	}
	inMapping, err := merged.DimsMappingFor(inNotation, false)
	if err != nil {
		return nil, err
	}

	attr := deriveAttr(output.DistAttr, inMapping)
	if attr.DynamicDims != nil {
		permuted := make([]bool, rank)
		for i, p := range perm {
			permuted[p] = attr.DynamicDims[i]
		}
		attr.DynamicDims = permuted
	}
	input, err := distributed.NewDistTensorSpec(shapes.Make(output.Shape.DType, inDims...), attr)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("transpose backward: perm=%v out=%q%v in=%q%v",
		perm, string(outAxes), output.DimsMapping(), inNotation, inMapping)
	return []distributed.DistTensorSpec{input}, nil
}

// transposePerm extracts and validates the "perm" attribute for a rank rank
// tensor, normalizing negative entries.
func transposePerm(attrs spmd.Attributes, rank int) ([]int, error) {
	perm, err := spmd.Attr[[]int](attrs, "perm")
	if err != nil {
		return nil, err
	}
	if len(perm) != rank {
		return nil, errors.Errorf("transpose perm %v has %d entries for a rank %d tensor", perm, len(perm), rank)
	}
	normalized := make([]int, len(perm))
	for i, axis := range perm {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, errors.Errorf("transpose perm entry %d is out of range for a rank %d tensor", perm[i], rank)
		}
		normalized[i] = axis
	}
	sorted := slices.Clone(normalized)
	slices.Sort(sorted)
	for i, axis := range sorted {
		if axis != i {
			return nil, errors.Errorf("transpose perm %v is not a permutation of the tensor axes", perm)
		}
	}
	return normalized, nil
}
