package grid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/filters"
	"github.com/JonMunkholm/visualedit/internal/lookup"
	"github.com/JonMunkholm/visualedit/internal/telemetry"
)

// EditRecord is the audit record built for each accepted cell edit.
type EditRecord struct {
	GridID        string
	Dataset       string
	RowID         string
	Column        string
	EditorKind    string
	PreviousValue any
	InitialValue  any
	NewValue      any
	Row           Row
	User          string
	IPAddress     string
	EditedAt      time.Time
}

// Output is the edit notification handed to the host.
type Output struct {
	Column       string `json:"column"`
	InitialValue any    `json:"initialValue"`
	OldValue     any    `json:"oldValue"`
	Value        any    `json:"value"`
	Row          Row    `json:"row"`
}

// Output returns the host notification for the record.
func (r EditRecord) Output() Output {
	return Output{
		Column:       r.Column,
		InitialValue: r.InitialValue,
		OldValue:     r.PreviousValue,
		Value:        r.NewValue,
		Row:          r.Row,
	}
}

// EditLog persists accepted edits.
type EditLog interface {
	AppendEdit(ctx context.Context, rec EditRecord) error
}

// Source loads a dataset's rows.
type Source interface {
	LoadRows(ctx context.Context, dataset string) ([]Row, error)
}

// Config describes one grid.
type Config struct {
	ID      string
	Dataset string
	// Columns are the declarative column definitions. They are never
	// mutated; each mount resolves a private copy.
	Columns []columns.Definition
}

// Deps are the controller's collaborators. Grid, Resolver and Transport are
// required.
type Deps struct {
	Grid      Grid
	Resolver  *columns.Resolver
	Transport lookup.Transport
	Lookup    lookup.Options
	Source    Source
	EditLog   EditLog
	Emitter   *telemetry.Emitter
	// OnCellEdited receives the host notification for each accepted edit.
	OnCellEdited func(Output)
	Logger       *slog.Logger
}

// Controller owns one mounted grid and its engines.
type Controller struct {
	id         string
	dataset    string
	deps       Deps
	editors    *Editors
	translator *filters.Translator
	logger     *slog.Logger

	mu          sync.RWMutex
	cols        []columns.Definition
	resolved    []columns.Definition
	mounted     bool
	rowCount    int
	poller      *lookup.Poller
	unsubscribe func()
}

// NewController creates an unmounted controller.
func NewController(cfg Config, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("grid", cfg.ID, "dataset", cfg.Dataset)
	if deps.Lookup.Logger == nil {
		deps.Lookup.Logger = logger
	}

	return &Controller{
		id:         cfg.ID,
		dataset:    cfg.Dataset,
		deps:       deps,
		editors:    NewEditors(),
		translator: filters.NewTranslator(deps.Grid, logger),
		logger:     logger,
		cols:       cfg.Columns,
	}
}

// ID returns the grid id.
func (c *Controller) ID() string { return c.id }

// Dataset returns the grid's dataset name.
func (c *Controller) Dataset() string { return c.dataset }

// Grid returns the underlying grid.
func (c *Controller) Grid() Grid { return c.deps.Grid }

// Mount resolves the column definitions against this controller, loads the
// data, mounts the grid and reports the initial render.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mounted {
		return ErrAlreadyMounted
	}

	resolved, err := c.resolve(c.cols)
	if err != nil {
		return err
	}
	rows, err := c.load(ctx)
	if err != nil {
		return err
	}
	if err := c.deps.Grid.Mount(resolved, rows); err != nil {
		return fmt.Errorf("mount grid %s: %w", c.id, err)
	}

	c.resolved = resolved
	c.rowCount = len(rows)
	c.poller = lookup.NewPoller(c.deps.Transport, c.editors, c.deps.Lookup)
	c.unsubscribe = c.deps.Grid.OnCellEdited(c.handleCellEdited)
	c.mounted = true

	c.logger.Info("grid mounted", "columns", len(resolved), "rows", len(rows))
	c.emitView(ctx)
	return nil
}

func (c *Controller) resolve(cols []columns.Definition) ([]columns.Definition, error) {
	resolved := columns.Clone(cols)
	if _, err := c.deps.Resolver.Resolve(resolved, c); err != nil {
		return nil, fmt.Errorf("resolve columns for grid %s: %w", c.id, err)
	}
	return resolved, nil
}

func (c *Controller) load(ctx context.Context) ([]Row, error) {
	if c.deps.Source == nil {
		return []Row{}, nil
	}
	rows, err := c.deps.Source.LoadRows(ctx, c.dataset)
	if err != nil {
		return nil, fmt.Errorf("load rows for grid %s: %w", c.id, err)
	}
	return rows, nil
}

// Unmount stops every lookup chain and drops the edit subscription.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		return
	}
	c.poller.Stop()
	c.unsubscribe()
	c.editors.CloseAll()
	c.mounted = false
	c.logger.Info("grid unmounted")
}

// Mounted reports whether the grid is mounted.
func (c *Controller) Mounted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mounted
}

// Columns returns the resolved column definitions of the mounted grid.
func (c *Controller) Columns() []columns.Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolved
}

// Render reports a table render.
func (c *Controller) Render(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.mounted {
		return ErrNotMounted
	}
	c.emitView(ctx)
	return nil
}

// UpdateColumns replaces the declarative columns. A mounted grid gets the
// newly resolved columns.
func (c *Controller) UpdateColumns(ctx context.Context, cols []columns.Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		c.cols = cols
		return nil
	}
	resolved, err := c.resolve(cols)
	if err != nil {
		return err
	}
	if err := c.deps.Grid.ReplaceColumns(resolved); err != nil {
		return fmt.Errorf("replace columns for grid %s: %w", c.id, err)
	}
	c.cols = cols
	c.resolved = resolved

	c.logger.Info("grid columns updated", "columns", len(resolved))
	c.emitView(ctx)
	return nil
}

// UpdateData replaces the grid's rows.
func (c *Controller) UpdateData(ctx context.Context, rows []Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		return ErrNotMounted
	}
	if err := c.deps.Grid.ReplaceData(rows); err != nil {
		return fmt.Errorf("replace data for grid %s: %w", c.id, err)
	}
	c.rowCount = len(rows)

	// Editors on rows that are gone stop looking up.
	for _, nodeID := range c.editors.CloseOrphans(c.deps.Grid.HasRow) {
		c.poller.CloseEditor(nodeID)
		c.logger.Debug("editor closed with its row", "node", nodeID)
	}
	c.emitView(ctx)
	return nil
}

// Reload reloads the rows from the source.
func (c *Controller) Reload(ctx context.Context) error {
	rows, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.UpdateData(ctx, rows)
}

// Rows returns the rows passing the active filters.
func (c *Controller) Rows() ([]Row, error) {
	if !c.Mounted() {
		return nil, ErrNotMounted
	}
	return c.deps.Grid.Rows(), nil
}

// HandleMessage applies a host frame message to the grid's filters.
func (c *Controller) HandleMessage(raw []byte) filters.Outcome {
	return c.translator.OnMessage(raw)
}

// EditCell edits one cell. Accepted edits are reported through the grid's
// edit subscription.
func (c *Controller) EditCell(ctx context.Context, rowID, field string, value any) (Output, error) {
	if !c.Mounted() {
		return Output{}, ErrNotMounted
	}
	edit, err := c.deps.Grid.Edit(ctx, rowID, field, value)
	if err != nil {
		return Output{}, err
	}
	return c.record(ctx, edit).Output(), nil
}

func (c *Controller) record(ctx context.Context, edit CellEdit) EditRecord {
	return EditRecord{
		GridID:        c.id,
		Dataset:       c.dataset,
		RowID:         edit.RowID,
		Column:        edit.Field,
		EditorKind:    c.column(edit.Field).Editor(),
		PreviousValue: edit.OldValue,
		InitialValue:  edit.InitialValue,
		NewValue:      edit.Value,
		Row:           edit.Row,
		User:          UserFromContext(ctx),
		IPAddress:     IPAddressFromContext(ctx),
		EditedAt:      time.Now().UTC(),
	}
}

func (c *Controller) handleCellEdited(ctx context.Context, edit CellEdit) {
	rec := c.record(ctx, edit)

	if c.deps.OnCellEdited != nil {
		c.deps.OnCellEdited(rec.Output())
	}
	if c.deps.EditLog != nil {
		if err := c.deps.EditLog.AppendEdit(ctx, rec); err != nil {
			c.logger.Warn("edit log append failed", "column", rec.Column, "row", rec.RowID, "error", err)
		}
	}
	c.deps.Emitter.EmitEdit(ctx, telemetry.EditEvent{
		Dataset:    c.dataset,
		Column:     rec.Column,
		ColumnType: rec.EditorKind,
	})
}

// column returns the resolved definition for field, or nil.
func (c *Controller) column(field string) columns.Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.resolved {
		if d.Field() == field {
			return d
		}
	}
	return nil
}

// OpenLinkedEditor opens the linked-record editor on the field of row rowID
// for nodeID. It blocks until the full candidate list has been fetched. The
// editor is closed when its row leaves the grid.
func (c *Controller) OpenLinkedEditor(ctx context.Context, nodeID, rowID, field string) (lookup.EditorOptions, error) {
	c.mu.RLock()
	mounted, poller := c.mounted, c.poller
	c.mu.RUnlock()
	if !mounted {
		return lookup.EditorOptions{}, ErrNotMounted
	}
	if !c.deps.Grid.HasRow(rowID) {
		return lookup.EditorOptions{}, fmt.Errorf("%w: %s", ErrUnknownRow, rowID)
	}

	def := c.column(field)
	if def == nil {
		return lookup.EditorOptions{}, fmt.Errorf("%w: %s", ErrUnknownColumn, field)
	}
	dataset := def.LinkedDataset()
	if dataset == "" {
		return lookup.EditorOptions{}, fmt.Errorf("%w: %s", ErrNotLinked, field)
	}

	ed := c.editors.Open(nodeID, rowID, dataset)
	opts, err := poller.OpenEditor(ctx, nodeID, dataset)
	if err != nil {
		c.editors.Close(nodeID)
		return lookup.EditorOptions{}, err
	}
	ed.SetCandidates(opts.Values)
	return opts, nil
}

// TypeInEditor records the editor's current search term.
func (c *Controller) TypeInEditor(nodeID, term string) error {
	ed, ok := c.editors.Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEditor, nodeID)
	}
	ed.SetSearchTerm(term)
	return nil
}

// EditorCandidates returns the editor's current candidates.
func (c *Controller) EditorCandidates(nodeID string) ([]lookup.Candidate, error) {
	ed, ok := c.editors.Get(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEditor, nodeID)
	}
	return ed.Candidates(), nil
}

// CloseLinkedEditor closes the editor and ends its lookup chain.
func (c *Controller) CloseLinkedEditor(nodeID string) {
	c.editors.Close(nodeID)

	c.mu.RLock()
	poller := c.poller
	c.mu.RUnlock()
	if poller != nil {
		poller.CloseEditor(nodeID)
	}
}

// ToggleColumn implements columns.ColumnActions.
func (c *Controller) ToggleColumn(field string) error {
	return c.deps.Grid.ToggleColumn(field)
}

// SetGroupBy implements columns.ColumnActions.
func (c *Controller) SetGroupBy(field string) error {
	return c.deps.Grid.SetGroupBy(field)
}

// emitView must be called with c.mu held.
func (c *Controller) emitView(ctx context.Context) {
	cols := make([]map[string]any, len(c.cols))
	for i, d := range c.cols {
		cols[i] = d.Map()
	}
	c.deps.Emitter.EmitView(ctx, c.dataset, cols, c.rowCount)
}
