package columns

import (
	"math"
	"testing"
)

type recordingActions struct {
	toggled []string
	grouped []string
}

func (a *recordingActions) ToggleColumn(field string) error {
	a.toggled = append(a.toggled, field)
	return nil
}

func (a *recordingActions) SetGroupBy(field string) error {
	a.grouped = append(a.grouped, field)
	return nil
}

func resolveBuiltin(t *testing.T, name string, binding any) Callable {
	t.Helper()
	cols := []Definition{{"fn": Variable(name)}}
	if _, err := NewResolver(Builtins()).Resolve(cols, binding); err != nil {
		t.Fatalf("Resolve(%s) error = %v", name, err)
	}
	return cols[0]["fn"].Fn
}

func TestMinMaxFilterFunction(t *testing.T) {
	fn := resolveBuiltin(t, FnMinMaxFilterFunction, nil)

	tests := []struct {
		name   string
		header map[string]any
		value  any
		want   bool
	}{
		{"min set passes larger", map[string]any{"start": "2", "end": ""}, 10.0, true},
		{"min set fails smaller", map[string]any{"start": "2", "end": ""}, 1.0, false},
		{"nothing set passes nil", map[string]any{"start": "", "end": ""}, nil, true},
		{"nothing set passes NaN", map[string]any{"start": "", "end": ""}, math.NaN(), true},
		{"both set", map[string]any{"start": "1", "end": "3"}, "2", true},
		{"garbage bound fails", map[string]any{"start": "abc", "end": ""}, 5.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fn(tt.header, tt.value, map[string]any{}, nil)
			if err != nil {
				t.Fatalf("call error = %v", err)
			}
			if got != tt.want {
				t.Errorf("minMaxFilterFunction(%v, %v) = %v, want %v", tt.header, tt.value, got, tt.want)
			}
		})
	}
}

func TestMinMaxFilterEditor(t *testing.T) {
	fn := resolveBuiltin(t, FnMinMaxFilterEditor, nil)

	got, err := fn(map[string]any{"start": 5.0})
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	m := got.(map[string]any)
	if m["start"] != "5" || m["end"] != "" {
		t.Errorf("editor value = %v, want start=5 end=\"\"", m)
	}
}

func TestListItemRichFormatter(t *testing.T) {
	fn := resolveBuiltin(t, FnListItemRichFormatter, nil)

	item := map[string]any{"value": "P-1", "label": "Bolt", "size": "M4", "material": "<steel>"}
	got, err := fn("Bolt", "P-1", item)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	want := "<strong>Bolt</strong><br/><div>&lt;steel&gt; - M4</div>"
	if got != want {
		t.Errorf("formatter = %q, want %q", got, want)
	}
}

func TestColumnHeaderMenuAction_UsesBinding(t *testing.T) {
	actions := &recordingActions{}
	fn := resolveBuiltin(t, FnColumnHeaderAction, actions)

	if _, err := fn(MenuHideColumn, "amount"); err != nil {
		t.Fatalf("hide error = %v", err)
	}
	if _, err := fn(MenuGroupBy, "status"); err != nil {
		t.Fatalf("group error = %v", err)
	}
	if _, err := fn("Explode", "status"); err == nil {
		t.Error("unknown menu item expected error")
	}

	if len(actions.toggled) != 1 || actions.toggled[0] != "amount" {
		t.Errorf("toggled = %v, want [amount]", actions.toggled)
	}
	if len(actions.grouped) != 1 || actions.grouped[0] != "status" {
		t.Errorf("grouped = %v, want [status]", actions.grouped)
	}
}

func TestColumnHeaderMenuAction_RequiresActions(t *testing.T) {
	fn := resolveBuiltin(t, FnColumnHeaderAction, "not a component")
	if _, err := fn(MenuHideColumn, "amount"); err == nil {
		t.Error("expected error for binding without column actions")
	}
}
