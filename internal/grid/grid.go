// Package grid orchestrates an editable data grid: it resolves column
// definitions, follows host filter messages, runs linked-record lookups and
// reports cell edits.
//
// The grid widget itself is an external collaborator reached through the
// Grid interface. MemoryGrid is the in-process implementation used by the
// HTTP front end and by tests.
package grid

import (
	"context"
	"errors"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/filters"
)

var (
	ErrNotMounted     = errors.New("grid not mounted")
	ErrAlreadyMounted = errors.New("grid already mounted")
	ErrUnknownRow     = errors.New("unknown row")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrUnknownEditor  = errors.New("no open editor")
	ErrNotLinked      = errors.New("column has no linked dataset")
)

// Row is one dataset record keyed by column field.
type Row = map[string]any

// CellEdit is the grid's report of an edited cell.
type CellEdit struct {
	RowID string
	Field string
	// InitialValue is the value the cell had when the data was loaded.
	InitialValue any
	OldValue     any
	Value        any
	// Row is a snapshot of the row after the edit.
	Row Row
}

// EditHandler receives cell edit notifications.
type EditHandler func(ctx context.Context, edit CellEdit)

// Grid is the grid widget. It owns column filter state and the column
// actions reachable from header menus.
type Grid interface {
	filters.ColumnRegistry
	columns.ColumnActions

	Mount(cols []columns.Definition, rows []Row) error
	ReplaceData(rows []Row) error
	ReplaceColumns(cols []columns.Definition) error
	// Rows returns the rows passing the active column filters.
	Rows() []Row
	// HasRow reports whether a row with id is loaded, filtered or not.
	HasRow(id string) bool
	// Edit sets a cell value and notifies subscribers when it changed.
	Edit(ctx context.Context, rowID, field string, value any) (CellEdit, error)
	// OnCellEdited subscribes to edits. The returned func unsubscribes.
	OnCellEdited(fn EditHandler) (unsubscribe func())

	Hidden(field string) bool
	GroupBy() string
}
