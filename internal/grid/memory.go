package grid

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/filters"
)

type cellKey struct {
	row   string
	field string
}

// MemoryGrid is an in-memory Grid. Rows are identified by the value of
// keyField, or by their position when keyField is empty or missing.
type MemoryGrid struct {
	keyField string

	mu       sync.RWMutex
	mounted  bool
	cols     []columns.Definition
	fields   map[string]bool
	rows     []Row
	ids      []string
	index    map[string]int
	initial  map[cellKey]any
	active   map[string]filters.Predicate
	hidden   map[string]bool
	groupBy  string
	handlers map[int]EditHandler
	nextSub  int
}

// NewMemoryGrid creates an unmounted grid.
func NewMemoryGrid(keyField string) *MemoryGrid {
	return &MemoryGrid{
		keyField: keyField,
		fields:   make(map[string]bool),
		index:    make(map[string]int),
		initial:  make(map[cellKey]any),
		active:   make(map[string]filters.Predicate),
		hidden:   make(map[string]bool),
		handlers: make(map[int]EditHandler),
	}
}

// Mount implements Grid.
func (g *MemoryGrid) Mount(cols []columns.Definition, rows []Row) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.setColumns(cols)
	g.setRows(rows)
	g.mounted = true
	return nil
}

// ReplaceData implements Grid. Initial values restart from the new data.
func (g *MemoryGrid) ReplaceData(rows []Row) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.mounted {
		return ErrNotMounted
	}
	g.setRows(rows)
	return nil
}

// ReplaceColumns implements Grid. Filters on columns that no longer exist
// are dropped.
func (g *MemoryGrid) ReplaceColumns(cols []columns.Definition) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.mounted {
		return ErrNotMounted
	}
	g.setColumns(cols)
	for field := range g.active {
		if !g.fields[field] {
			delete(g.active, field)
		}
	}
	return nil
}

func (g *MemoryGrid) setColumns(cols []columns.Definition) {
	g.cols = cols
	g.fields = make(map[string]bool, len(cols))
	for _, c := range cols {
		if f := c.Field(); f != "" {
			g.fields[f] = true
		}
	}
}

func (g *MemoryGrid) setRows(rows []Row) {
	g.rows = make([]Row, len(rows))
	g.ids = make([]string, len(rows))
	g.index = make(map[string]int, len(rows))
	g.initial = make(map[cellKey]any)

	for i, r := range rows {
		g.rows[i] = copyRow(r)
		id := g.rowID(i, r)
		g.ids[i] = id
		g.index[id] = i
	}
}

func (g *MemoryGrid) rowID(i int, r Row) string {
	if g.keyField != "" {
		if v, ok := r[g.keyField]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return strconv.Itoa(i)
}

// Columns returns the mounted column definitions.
func (g *MemoryGrid) Columns() []columns.Definition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cols
}

// Rows implements Grid.
func (g *MemoryGrid) Rows() []Row {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Row, 0, len(g.rows))
	for _, r := range g.rows {
		if g.passes(r) {
			out = append(out, copyRow(r))
		}
	}
	return out
}

func (g *MemoryGrid) passes(r Row) bool {
	for field, p := range g.active {
		if !p.Match(r[field]) {
			return false
		}
	}
	return true
}

// Edit implements Grid. Subscribers are notified outside the lock, and only
// when the value actually changed.
func (g *MemoryGrid) Edit(ctx context.Context, rowID, field string, value any) (CellEdit, error) {
	g.mu.Lock()
	if !g.mounted {
		g.mu.Unlock()
		return CellEdit{}, ErrNotMounted
	}
	i, ok := g.index[rowID]
	if !ok {
		g.mu.Unlock()
		return CellEdit{}, fmt.Errorf("%w: %s", ErrUnknownRow, rowID)
	}
	if !g.fields[field] {
		g.mu.Unlock()
		return CellEdit{}, fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}

	row := g.rows[i]
	old := row[field]
	key := cellKey{row: rowID, field: field}
	initial, seen := g.initial[key]
	if !seen {
		initial = old
		g.initial[key] = old
	}
	row[field] = value

	edit := CellEdit{
		RowID:        rowID,
		Field:        field,
		InitialValue: initial,
		OldValue:     old,
		Value:        value,
		Row:          copyRow(row),
	}
	changed := !reflect.DeepEqual(old, value)

	var subs []EditHandler
	if changed {
		subs = g.subscribers()
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, edit)
	}
	return edit, nil
}

func (g *MemoryGrid) subscribers() []EditHandler {
	ids := make([]int, 0, len(g.handlers))
	for id := range g.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]EditHandler, len(ids))
	for i, id := range ids {
		out[i] = g.handlers[id]
	}
	return out
}

// OnCellEdited implements Grid.
func (g *MemoryGrid) OnCellEdited(fn EditHandler) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.handlers[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, id)
	}
}

// HasRow implements Grid.
func (g *MemoryGrid) HasRow(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// HasColumn implements filters.ColumnRegistry.
func (g *MemoryGrid) HasColumn(field string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fields[field]
}

// SetFilter implements filters.ColumnRegistry.
func (g *MemoryGrid) SetFilter(field string, p filters.Predicate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Kind == filters.Cleared {
		delete(g.active, field)
		return
	}
	g.active[field] = p
}

// ClearFilter implements filters.ColumnRegistry.
func (g *MemoryGrid) ClearFilter(field string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, field)
}

// ClearFilters implements filters.ColumnRegistry.
func (g *MemoryGrid) ClearFilters() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = make(map[string]filters.Predicate)
}

// Filters returns the active predicate per column.
func (g *MemoryGrid) Filters() map[string]filters.Predicate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]filters.Predicate, len(g.active))
	for k, v := range g.active {
		out[k] = v
	}
	return out
}

// ToggleColumn implements columns.ColumnActions.
func (g *MemoryGrid) ToggleColumn(field string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fields[field] {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	g.hidden[field] = !g.hidden[field]
	return nil
}

// SetGroupBy implements columns.ColumnActions.
func (g *MemoryGrid) SetGroupBy(field string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if field != "" && !g.fields[field] {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	g.groupBy = field
	return nil
}

// Hidden reports whether a column has been hidden from the header menu.
func (g *MemoryGrid) Hidden(field string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hidden[field]
}

// GroupBy returns the grouping column, if any.
func (g *MemoryGrid) GroupBy() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groupBy
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
