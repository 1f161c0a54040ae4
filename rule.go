package spmd

import (
	"github.com/gomlx/spmd/types/distributed"
	"github.com/pkg/errors"
)

// Attributes carries an operator's attributes (transpose flags, reduction
// axes, ...) into a rule. The engine treats it as opaque; each rule extracts
// the entries it needs, usually with Attr.
type Attributes map[string]any

// Attr extracts the operator attribute name from attrs as a T. It fails if
// the attribute is missing or holds a value of a different type; there is no
// implicit conversion, an attribute stored as []int64 is not an []int.
func Attr[T any](attrs Attributes, name string) (T, error) {
	var zero T
	value, found := attrs[name]
	if !found {
		return zero, errors.Errorf("operator attribute %q is missing", name)
	}
	typed, ok := value.(T)
	if !ok {
		return zero, errors.Errorf("operator attribute %q must be a %T, got %T (%v)",
			name, zero, value, value)
	}
	return typed, nil
}

// Rule infers distributed layouts for one operator type: InferForward derives
// the outputs' specs from the operands', InferBackward the operands' specs
// from the outputs'. Which rule handles which operator is decided by a
// Registry, keyed on the operator-type name.
//
// Implementations derive each tensor's axis notation from the operator's
// semantics, merge the relevant operands with MergeTensors, derive each
// inferred attribute with DeriveOutputAttr and fill its DimsMapping from the
// merged AxisMapping (resolving partial dimensions with ResolvePartialDims
// where the operator reduces axes away).
//
// Rules must treat the given specs as read-only and return fresh specs.
type Rule interface {
	InferForward(inputs []distributed.DistTensorSpec, attrs Attributes) ([]distributed.DistTensorSpec, error)
	InferBackward(outputs []distributed.DistTensorSpec, attrs Attributes) ([]distributed.DistTensorSpec, error)
}

// Base is a Rule whose two methods fail with ErrUnimplemented.
//
// Concrete rules embed it so the direction they do not implement fails
// explicitly rather than inferring something wrong: e.g. a rule whose operand
// ranks cannot be recovered from its outputs embeds Base and overrides only
// InferForward.
type Base struct{}

var _ Rule = Base{}

// InferForward fails with ErrUnimplemented.
func (Base) InferForward(inputs []distributed.DistTensorSpec, attrs Attributes) ([]distributed.DistTensorSpec, error) {
	return nil, errors.Wrapf(ErrUnimplemented, "in InferForward()")
}

// InferBackward fails with ErrUnimplemented.
func (Base) InferBackward(outputs []distributed.DistTensorSpec, attrs Attributes) ([]distributed.DistTensorSpec, error) {
	return nil, errors.Wrapf(ErrUnimplemented, "in InferBackward()")
}
