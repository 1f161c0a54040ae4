package spmd

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnimplemented indicates an operator has no usable sharding rule: either
// Base's methods were reached because a concrete rule does not implement the
// requested direction, or no rule is registered for the operator type at all.
//
// It is a configuration error, not a recoverable condition: the compiler pass
// must abort partitioning for that operator. Check for it with errors.Is; the
// returned errors wrap it with the missing method or operator type.
var ErrUnimplemented = errors.New("sharding rule not implemented")

// ShardingConflictError is returned by MergeAxis (and so by MergeTensors) when
// two operands demand different non-replicated mesh dimensions for the same
// logical tensor axis.
//
// Retrieve it with errors.As to get the axis and both candidate dimensions.
type ShardingConflictError struct {
	// Axis is the axis-notation character the operands disagree about.
	Axis string

	// Dim1 and Dim2 are the two conflicting mesh-dimension indices.
	Dim1, Dim2 int
}

func (e *ShardingConflictError) Error() string {
	return fmt.Sprintf("tensor axis %q is sharded by two different mesh dimensions %d and %d",
		e.Axis, e.Dim1, e.Dim2)
}
