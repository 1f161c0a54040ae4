package spmd

import (
	"slices"

	"github.com/gomlx/spmd/types/distributed"
	"github.com/pkg/errors"
)

// Direction selects which way a Registry.Infer call propagates layouts
// through an operator.
type Direction int

//go:generate go tool enumer -type=Direction -output=gen_direction_enumer.go registry.go

const (
	// Forward infers the outputs' layouts from the operands'.
	Forward Direction = iota

	// Backward infers the operands' layouts from the outputs'.
	Backward
)

// Registry maps operator-type names to their sharding rules.
//
// There is no process-wide registry: each compiler pipeline builds its own,
// typically seeding it with the built-in rules and registering custom ones on
// top. A Registry is safe for concurrent use only after registration is done;
// Register must not run concurrently with Lookup or Infer.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register binds rule to the operator type opType. Each operator type takes
// exactly one rule; registering a second one is an error, so overriding a
// built-in requires a fresh Registry.
func (r *Registry) Register(opType string, rule Rule) error {
	if opType == "" {
		return errors.New("cannot register a sharding rule for an empty operator type")
	}
	if rule == nil {
		return errors.Errorf("cannot register a nil sharding rule for operator type %q", opType)
	}
	if _, found := r.rules[opType]; found {
		return errors.Errorf("a sharding rule for operator type %q is already registered", opType)
	}
	r.rules[opType] = rule
	return nil
}

// Lookup returns the rule registered for opType, or false if there is none.
func (r *Registry) Lookup(opType string) (Rule, bool) {
	rule, found := r.rules[opType]
	return rule, found
}

// OpTypes returns the registered operator types, sorted.
func (r *Registry) OpTypes() []string {
	opTypes := make([]string, 0, len(r.rules))
	for opType := range r.rules {
		opTypes = append(opTypes, opType)
	}
	slices.Sort(opTypes)
	return opTypes
}

// Infer dispatches to the rule registered for opType and propagates layouts
// in the given direction: for Forward specs are the operands' and it returns
// the outputs', for Backward the other way around.
//
// An operator type with no registered rule fails with ErrUnimplemented, as
// does a direction the rule does not implement; callers that fall back to
// replicating unhandled operators test for it with errors.Is.
func (r *Registry) Infer(dir Direction, opType string, specs []distributed.DistTensorSpec, attrs Attributes) ([]distributed.DistTensorSpec, error) {
	rule, found := r.rules[opType]
	if !found {
		return nil, errors.Wrapf(ErrUnimplemented, "no sharding rule registered for operator type %q", opType)
	}
	switch dir {
	case Forward:
		return rule.InferForward(specs, attrs)
	case Backward:
		return rule.InferBackward(specs, attrs)
	default:
		return nil, errors.Errorf("invalid inference direction %d", dir)
	}
}
