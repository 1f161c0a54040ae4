// Package spmd infers how the tensors of an operator are distributed over a
// mesh of processes: given operands annotated with distributed layouts, it
// derives consistent layouts for the operator's outputs (forward direction) or
// for its inputs given its outputs (backward direction), merging the operands'
// sharding proposals and resolving conflicts deterministically.
//
// Among its pieces:
//
//   - types/distributed defines the layout model: ProcessMesh, TensorDistAttr
//     and DistTensorSpec.
//   - MergeAxis and MergeTensors merge the per-axis mesh-dimension proposals
//     of an operator's operands into one AxisMapping. A sharded proposal wins
//     over a replicated one, and one mesh dimension shards at most one tensor
//     axis.
//   - DeriveOutputAttr and ResolvePartialDims turn a merge result into output
//     attributes.
//   - Rule is the contract a per-operator rule implements (the rules package
//     has the common operators), and Registry dispatches operator types to
//     rules.
//
// Every operation is a pure function over immutable inputs: nothing blocks,
// nothing is cached, and no call mutates shared state, so the surrounding
// compiler may run inference concurrently over independent operators.
package spmd
