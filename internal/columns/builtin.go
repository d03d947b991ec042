package columns

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/JonMunkholm/visualedit/internal/filters"
)

// Names of the built-in host functions.
const (
	FnMinMaxFilterFunction  = "myNamespace.tabulator.minMaxFilterFunction"
	FnMinMaxFilterEditor    = "myNamespace.tabulator.minMaxFilterEditor"
	FnListItemRichFormatter = "myNamespace.tabulator.listItemRichFormatter"
	FnColumnHeaderMenu      = "myNamespace.tabulator.columnHeaderMenu"
	FnColumnHeaderAction    = "myNamespace.tabulator.columnHeaderMenuAction"
)

// Header menu entries.
const (
	MenuHideColumn = "Hide Column"
	MenuGroupBy    = "Group By"
)

// ColumnActions is implemented by components that can act on header menu
// selections.
type ColumnActions interface {
	ToggleColumn(field string) error
	SetGroupBy(field string) error
}

// Builtins returns a registry holding the built-in host functions.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(FnMinMaxFilterFunction, minMaxFilterFunction)
	r.Register(FnMinMaxFilterEditor, minMaxFilterEditor)
	r.Register(FnListItemRichFormatter, listItemRichFormatter)
	r.Register(FnColumnHeaderMenu, columnHeaderMenu)
	r.Register(FnColumnHeaderAction, columnHeaderMenuAction)
	return r
}

// minMaxFilterFunction(headerValue, rowValue, ...) filters rows to those
// whose value lies between the header's start and end.
func minMaxFilterFunction(_ any, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("minMaxFilterFunction: want headerValue and rowValue, got %d args", len(args))
	}
	start, end := headerBounds(args[0])
	r, err := filters.ParseRange(start, end)
	if err != nil {
		return false, nil
	}
	return r.Match(args[1]), nil
}

// minMaxFilterEditor(current) returns the header value shape {start, end}
// seeded from the current header value.
func minMaxFilterEditor(_ any, args ...any) (any, error) {
	var start, end string
	if len(args) > 0 {
		start, end = headerBounds(args[0])
	}
	return map[string]any{"start": start, "end": end}, nil
}

func headerBounds(v any) (start, end string) {
	m, ok := asStringMap(v)
	if !ok {
		return "", ""
	}
	return boundString(m["start"]), boundString(m["end"])
}

func boundString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// listItemRichFormatter(label, value, item) renders a linked-record option:
// the label in bold, followed by the item's other lookup columns.
func listItemRichFormatter(_ any, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("listItemRichFormatter: missing label")
	}
	label := boundString(args[0])

	var extras []string
	if len(args) >= 3 {
		if item, ok := asStringMap(args[2]); ok {
			keys := make([]string, 0, len(item))
			for k := range item {
				if k != "label" && k != "value" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			for _, k := range keys {
				extras = append(extras, html.EscapeString(boundString(item[k])))
			}
		}
	}

	return "<strong>" + html.EscapeString(label) + "</strong><br/><div>" +
		strings.Join(extras, " - ") + "</div>", nil
}

// columnHeaderMenu returns the header context menu labels.
func columnHeaderMenu(_ any, _ ...any) (any, error) {
	return []string{MenuHideColumn, MenuGroupBy}, nil
}

// columnHeaderMenuAction(label, field) performs a header menu selection on
// the bound component.
func columnHeaderMenuAction(binding any, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("columnHeaderMenuAction: want label and field, got %d args", len(args))
	}
	actions, ok := binding.(ColumnActions)
	if !ok {
		return nil, fmt.Errorf("columnHeaderMenuAction: binding %T does not support column actions", binding)
	}
	label, field := boundString(args[0]), boundString(args[1])
	switch label {
	case MenuHideColumn:
		return nil, actions.ToggleColumn(field)
	case MenuGroupBy:
		return nil, actions.SetGroupBy(field)
	default:
		return nil, fmt.Errorf("columnHeaderMenuAction: unknown menu item %q", label)
	}
}
