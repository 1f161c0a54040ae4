package rules

import (
	"slices"

	"github.com/gomlx/spmd"
	"github.com/gomlx/spmd/types/distributed"
	"github.com/gomlx/spmd/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// matmulAlphabet reserves k, m and n for the contraction notation
// x[...mk] @ y[...kn] -> out[...mn]; batch axes draw from the rest.
const matmulAlphabet = "abcdefghijlopqrstuvwxyz"

// MatMul is the sharding rule for matrix multiplication, with broadcast batch
// axes and the optional transposition of either operand's two trailing axes
// (boolean attributes "trans_x" and "trans_y").
//
// Sharding the contraction axis is legal: each process then multiplies its
// shard and holds a partial product, and the output is partial over that mesh
// dimension pending an all-reduce scheduled by the surrounding compiler.
//
// Only the forward direction is implemented: the operand ranks are not
// recoverable from the output alone (a rank-1 operand drops its axis from the
// output).
type MatMul struct {
	spmd.Base
}

var _ spmd.Rule = MatMul{}

// InferForward derives the output spec of x @ y.
func (MatMul) InferForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) ([]distributed.DistTensorSpec, error) {
	output, partialDims, err := matmulForward(inputs, attrs)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("matmul forward: output=%s, partial over mesh dimensions %v", output, partialDims)
	return []distributed.DistTensorSpec{output}, nil
}

// matmulForward also returns the mesh dimensions the output is partial over.
func matmulForward(inputs []distributed.DistTensorSpec, attrs spmd.Attributes) (distributed.DistTensorSpec, []int, error) {
	var none distributed.DistTensorSpec
	if err := verifySpecs("matmul", inputs); err != nil {
		return none, nil, err
	}
	if len(inputs) != 2 {
		return none, nil, errors.Errorf("matmul takes exactly 2 operands, got %d", len(inputs))
	}
	transX, err := spmd.Attr[bool](attrs, "trans_x")
	if err != nil {
		return none, nil, err
	}
	transY, err := spmd.Attr[bool](attrs, "trans_y")
	if err != nil {
		return none, nil, err
	}

	x, y := inputs[0], inputs[1]
	xRank, yRank := x.Rank(), y.Rank()
	if xRank == 0 || yRank == 0 {
		return none, nil, errors.Errorf("matmul operands cannot be scalar, got ranks %d and %d", xRank, yRank)
	}
	xDims, yDims := slices.Clone(x.Dims()), slices.Clone(y.Dims())
	xMapping, yMapping := slices.Clone(x.DimsMapping()), slices.Clone(y.DimsMapping())

	// Transposition swaps the two trailing axes of local copies only, the
	// callers' specs stay untouched.
	if transX {
		if xRank < 2 {
			return none, nil, errors.Errorf("matmul with trans_x requires x of rank >= 2, got rank %d", xRank)
		}
		xDims[xRank-2], xDims[xRank-1] = xDims[xRank-1], xDims[xRank-2]
		xMapping[xRank-2], xMapping[xRank-1] = xMapping[xRank-1], xMapping[xRank-2]
	}
	if transY {
		if yRank < 2 {
			return none, nil, errors.Errorf("matmul with trans_y requires y of rank >= 2, got rank %d", yRank)
		}
		yDims[yRank-2], yDims[yRank-1] = yDims[yRank-1], yDims[yRank-2]
		yMapping[yRank-2], yMapping[yRank-1] = yMapping[yRank-1], yMapping[yRank-2]
	}

	// Rank-1 operands are the bare contraction vector "k" and drop their m/n
	// axis from the output.
	var xAxes, yAxes, outAxes string
	var outDims []int
	maxRank := max(xRank, yRank)
	switch {
	case xRank == 1 && yRank == 1:
		xAxes, yAxes, outAxes = "k", "k", ""
	case xRank == 1:
		yBroadcast, err := broadcastAxes(yRank-2, yRank-2, matmulAlphabet)
		if err != nil {
			return none, nil, err
		}
		xAxes, yAxes, outAxes = "k", yBroadcast+"kn", yBroadcast+"n"
		outDims = append(slices.Clone(yDims[:yRank-2]), yDims[yRank-1])
	case yRank == 1:
		xBroadcast, err := broadcastAxes(xRank-2, xRank-2, matmulAlphabet)
		if err != nil {
			return none, nil, err
		}
		xAxes, yAxes, outAxes = xBroadcast+"mk", "k", xBroadcast+"m"
		outDims = append(slices.Clone(xDims[:xRank-2]), xDims[xRank-2])
	default:
		xBroadcast, err := broadcastAxes(xRank-2, maxRank-2, matmulAlphabet)
		if err != nil {
			return none, nil, err
		}
		yBroadcast, err := broadcastAxes(yRank-2, maxRank-2, matmulAlphabet)
		if err != nil {
			return none, nil, err
		}
		xAxes, yAxes = xBroadcast+"mk", yBroadcast+"kn"
		longest := xBroadcast
		if yRank > xRank {
			longest = yBroadcast
		}
		outAxes = longest + "mn"
		outDims, err = broadcastBatchDims(xDims[:xRank-2], yDims[:yRank-2], maxRank-2)
		if err != nil {
			return none, nil, err
		}
		outDims = append(outDims, xDims[xRank-2], yDims[yRank-1])
	}

	xContract := xDims[xRank-1]
	yContract := yDims[0]
	if yRank > 1 {
		yContract = yDims[yRank-2]
	}
	if xContract != yContract {
		return none, nil, errors.Errorf("matmul contraction dimensions do not match: x has %d, y has %d",
			xContract, yContract)
	}

	merged, err := spmd.MergeTensors(
		spmd.TensorAxes{Notation: xAxes, DimsMapping: xMapping},
		spmd.TensorAxes{Notation: yAxes, DimsMapping: yMapping},
	)
	if err != nil {
		return none, nil, err
	}
	outMapping, err := merged.DimsMappingFor(outAxes, false)
	if err != nil {
		return none, nil, err
	}
	output, err := distributed.NewDistTensorSpec(
		shapes.Make(x.Shape.DType, outDims...),
		deriveAttr(x.DistAttr, outMapping))
	if err != nil {
		return none, nil, err
	}

	// A sharded contraction axis leaves every process with a partial product.
	partialDims := spmd.ResolvePartialDims(merged, "k")
	klog.V(4).Infof("matmul forward: x=%q%v y=%q%v merged=%s out=%q%v",
		xAxes, xMapping, yAxes, yMapping, merged, outAxes, outMapping)
	return output, partialDims, nil
}

// broadcastBatchDims right-aligns the two batch prefixes and broadcasts them
// over rank axes, size-1 entries expanding to the other operand's size.
func broadcastBatchDims(xBatch, yBatch []int, rank int) ([]int, error) {
	dims := make([]int, rank)
	for i := range dims {
		dims[i] = 1
	}
	for _, batch := range [][]int{xBatch, yBatch} {
		start := rank - len(batch)
		for d, size := range batch {
			switch {
			case dims[start+d] == 1:
				dims[start+d] = size
			case size != 1 && size != dims[start+d]:
				return nil, errors.Errorf("matmul batch dimensions do not broadcast: %v vs %v", xBatch, yBatch)
			}
		}
	}
	return dims, nil
}
