package columns

import (
	"errors"
	"fmt"
)

// ErrUnknownFunction is returned when a reference names a function the
// registry does not hold.
var ErrUnknownFunction = errors.New("unknown host function")

// Resolver binds symbolic references in column definitions to a component.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver backed by registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve walks every definition depth-first and replaces each reference
// with a callable bound to binding. The slice is mutated in place and
// returned. Nodes resolved by an earlier call are left untouched, so
// resolving twice is a no-op.
func (r *Resolver) Resolve(cols []Definition, binding any) ([]Definition, error) {
	for i, col := range cols {
		if err := r.resolveDefinition(col, binding); err != nil {
			return cols, fmt.Errorf("column %d (%s): %w", i, col.Field(), err)
		}
	}
	return cols, nil
}

func (r *Resolver) resolveDefinition(d Definition, binding any) error {
	for key, n := range d {
		if n == nil {
			continue
		}
		switch n.Kind {
		case KindRef:
			resolved, err := r.bind(n.Ref, binding)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			d[key] = resolved
		case KindNested:
			if err := r.resolveDefinition(n.Nested, binding); err != nil {
				return fmt.Errorf("%s.%w", key, err)
			}
		case KindLiteral, KindResolved:
		}
	}
	return nil
}

func (r *Resolver) bind(ref Ref, binding any) (*Node, error) {
	fn, ok := r.registry.Lookup(ref.Name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", ref.Name, ErrUnknownFunction)
	}
	return &Node{
		Kind: KindResolved,
		Ref:  ref,
		Fn: func(args ...any) (any, error) {
			return fn(binding, args...)
		},
	}, nil
}
