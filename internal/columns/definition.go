// Package columns holds the declarative column definitions handed to the grid
// and the resolver that turns their symbolic function references into
// callables bound to the owning component.
//
// A definition is a tree. Each property is a [Node] tagged with its [Kind]:
//
//   - KindLiteral: a plain value passed through to the grid unchanged
//   - KindRef: a named pointer to a host-provided function (see [Ref])
//   - KindNested: another property map, e.g. an editor's parameter object
//   - KindResolved: a ref that has already been bound to a component
//
// Definitions decode from the JSON/YAML shape produced by the host
// application, where a function reference is an object carrying a
// "variable", "arrow" or "function" key:
//
//	{
//	    "field": "amount",
//	    "headerFilterFunc": {"variable": "myNamespace.tabulator.minMaxFilterFunction"},
//	    "editorParams": {
//	        "itemFormatter": {"variable": "myNamespace.tabulator.listItemRichFormatter"}
//	    }
//	}
package columns

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindLiteral Kind = iota
	KindRef
	KindNested
	KindResolved
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindRef:
		return "ref"
	case KindNested:
		return "nested"
	case KindResolved:
		return "resolved"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Ref is a symbolic reference to a function declared by the host application.
// Variable and Arrow mark references that resolve as leaves.
type Ref struct {
	Name     string
	Variable bool
	Arrow    bool
}

// Callable is a host function bound to a component instance.
type Callable func(args ...any) (any, error)

// ErrNotCallable is returned when invoking a property that is not a resolved ref.
var ErrNotCallable = errors.New("property is not a resolved function")

// Node is one property value of a column definition.
type Node struct {
	Kind    Kind
	Literal any
	Ref     Ref // set for KindRef and KindResolved
	Nested  Definition
	Fn      Callable
}

// Literal wraps a plain value.
func Literal(v any) *Node { return &Node{Kind: KindLiteral, Literal: v} }

// Variable wraps a variable-style function reference.
func Variable(name string) *Node {
	return &Node{Kind: KindRef, Ref: Ref{Name: name, Variable: true}}
}

// Arrow wraps an inline (arrow) function reference.
func Arrow(name string) *Node {
	return &Node{Kind: KindRef, Ref: Ref{Name: name, Arrow: true}}
}

// Function wraps an unflagged function reference.
func Function(name string) *Node {
	return &Node{Kind: KindRef, Ref: Ref{Name: name}}
}

// Nested wraps a nested property map.
func Nested(d Definition) *Node { return &Node{Kind: KindNested, Nested: d} }

// Definition is a column definition: property name to value.
type Definition map[string]*Node

// Prop returns the property as a string literal, or "" if it is absent or not a string.
func (d Definition) Prop(key string) string {
	n, ok := d[key]
	if !ok || n == nil || n.Kind != KindLiteral {
		return ""
	}
	s, _ := n.Literal.(string)
	return s
}

// Field returns the column's field name.
func (d Definition) Field() string { return d.Prop("field") }

// Title returns the column's header title.
func (d Definition) Title() string { return d.Prop("title") }

// Editor returns the column's editor kind ("input", "list", "linkedRecord", ...).
func (d Definition) Editor() string { return d.Prop("editor") }

// LinkedDataset returns the linked dataset name for linked-record columns.
func (d Definition) LinkedDataset() string { return d.Prop("linkedDatasetName") }

// Call invokes a resolved function property.
func (d Definition) Call(key string, args ...any) (any, error) {
	n, ok := d[key]
	if !ok || n == nil || n.Kind != KindResolved || n.Fn == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrNotCallable)
	}
	return n.Fn(args...)
}

// FromValue converts a decoded JSON/YAML value into a Node.
func FromValue(v any) *Node {
	m, ok := asStringMap(v)
	if !ok {
		return Literal(v)
	}
	if name, ok := m["variable"].(string); ok {
		return Variable(name)
	}
	if name, ok := m["arrow"].(string); ok {
		return Arrow(name)
	}
	if name, ok := m["function"].(string); ok && len(m) == 1 {
		return Function(name)
	}
	return Nested(FromMap(m))
}

// FromMap converts a decoded property map into a Definition.
func FromMap(m map[string]any) Definition {
	d := make(Definition, len(m))
	for k, v := range m {
		d[k] = FromValue(v)
	}
	return d
}

// asStringMap accepts both map[string]any (JSON, YAML v3) and
// map[any]any (older YAML decoders).
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Value converts the node back to its declarative form. Resolved nodes
// render as the reference they were bound from.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindRef, KindResolved:
		switch {
		case n.Ref.Variable:
			return map[string]any{"variable": n.Ref.Name}
		case n.Ref.Arrow:
			return map[string]any{"arrow": n.Ref.Name}
		default:
			return map[string]any{"function": n.Ref.Name}
		}
	case KindNested:
		return n.Nested.Map()
	default:
		return n.Literal
	}
}

// Map converts the definition back to a plain property map.
func (d Definition) Map() map[string]any {
	out := make(map[string]any, len(d))
	for k, n := range d {
		out[k] = n.Value()
	}
	return out
}

// MarshalJSON encodes the definition in its declarative form.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// UnmarshalJSON decodes a definition from its declarative form.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = FromMap(m)
	return nil
}

// UnmarshalYAML decodes a definition from a YAML mapping.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	*d = FromMap(m)
	return nil
}

// Clone returns a deep copy of the definitions so callers can resolve
// the copy without touching a shared source tree.
func Clone(cols []Definition) []Definition {
	out := make([]Definition, len(cols))
	for i, c := range cols {
		out[i] = c.clone()
	}
	return out
}

func (d Definition) clone() Definition {
	out := make(Definition, len(d))
	for k, n := range d {
		if n == nil {
			out[k] = nil
			continue
		}
		cp := *n
		if n.Kind == KindNested {
			cp.Nested = n.Nested.clone()
		}
		out[k] = &cp
	}
	return out
}
