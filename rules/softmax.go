package rules

import (
	"slices"

	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Softmax is the sharding rule for softmax over one axis (attribute "axis",
// int, negative indexing from the end). The normalization needs the whole
// softmax axis on every process, so a layout sharding that axis is demoted to
// replicated; everything else passes through unchanged.
//
// Both directions are implemented: the operator is shape-preserving, so the
// backward inference mirrors the forward one from the output spec.
type Softmax struct {
	spmd.Base
}

var _ spmd.Rule = Softmax{}

// InferForward derives the output spec from the operand's.
func (Softmax) InferForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	return softmaxInfer(inputs, attrs)
}

// InferBackward derives the operand's spec from the output's.
func (Softmax) InferBackward(outputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	return softmaxInfer(outputs, attrs)
}

func softmaxInfer(specs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	if err := verifySpecs("softmax", specs); err != nil {
		return nil, err
	}
	if len(specs) != 1 {
		return nil, errors.Errorf("softmax takes exactly 1 spec, got %d", len(specs))
	}
	axis, err := spmd.Attr[int](attrs, "axis")
	if err != nil {
		return nil, err
	}

	src := specs[0]
	rank := src.Rank()
	normalized := axis
	if normalized < 0 {
		normalized += rank
	}
	if normalized < 0 || normalized >= rank {
		return nil, errors.Errorf("softmax axis %d is out of range for a rank %d tensor", axis, rank)
	}

	mapping := slices.Clone(src.DimsMapping())
	if mapping[normalized] >= 0 {
		klog.V(4).Infof("softmax: the softmax axis %d is sharded over mesh dimension %d but the normalization needs the whole axis locally; replicating it",
			normalized, mapping[normalized])
		mapping[normalized] = distributed.Replicated
	}

	notation, err := broadcastAxes(rank, rank, alphabet)
	if err != nil {
		return nil, err
	}
	merged, err := spmd.MergeTensors(spmd.TensorAxes{Notation: notation, DimsMapping: mapping})
	if err != nil {
		return nil, err
	}
	inferredMapping, err := merged.DimsMappingFor(notation, false)
	if err != nil {
		return nil, err
	}
	inferred, err := distributed.NewDistTensorSpec(src.Shape.Clone(), deriveAttr(src.DistAttr, inferredMapping))
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("softmax: axis=%d src=%s inferred=%s", normalized, src, inferred)
	return []distributed.DistTensorSpec{inferred}, nil
}
