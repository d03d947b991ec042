package definition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/JonMunkholm/visualedit/internal/dataset"
	"github.com/JonMunkholm/visualedit/internal/grid"
)

// DatasetRegistry accepts the row key and linked records of a grid's dataset.
type DatasetRegistry interface {
	SetKeyField(dataset, keyField string)
	RegisterLinked(dataset string, lr dataset.LinkedRecord) error
}

// Factory builds an unmounted controller for a grid definition.
type Factory func(g Grid) *grid.Controller

// Applier brings a catalog in line with a set of grid definitions.
type Applier struct {
	catalog *grid.Catalog
	linked  DatasetRegistry
	factory Factory
	logger  *slog.Logger

	mu      sync.Mutex
	applied map[string]Grid
}

// NewApplier creates an applier. linked may be nil when no grid uses
// linked records or an edit log.
func NewApplier(catalog *grid.Catalog, linked DatasetRegistry, factory Factory, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		catalog: catalog,
		linked:  linked,
		factory: factory,
		logger:  logger.With("component", "definitions"),
		applied: make(map[string]Grid),
	}
}

// Apply mounts new grids, updates changed ones in place and unmounts grids
// that are no longer defined. A grid whose dataset or key field changed is
// rebuilt. Errors of one grid do not stop the others.
func (a *Applier) Apply(ctx context.Context, grids []Grid) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	seen := make(map[string]bool, len(grids))
	for _, g := range grids {
		seen[g.ID] = true
		if err := a.applyGrid(ctx, g); err != nil {
			errs = append(errs, err)
		}
	}

	for id := range a.applied {
		if seen[id] {
			continue
		}
		if c, ok := a.catalog.Remove(id); ok {
			c.Unmount()
		}
		delete(a.applied, id)
		a.logger.Info("grid removed", "grid", id)
	}
	return errors.Join(errs...)
}

func (a *Applier) applyGrid(ctx context.Context, g Grid) error {
	if a.linked != nil {
		a.linked.SetKeyField(g.Dataset, g.KeyField)
		for _, lr := range g.LinkedRecords {
			if err := a.linked.RegisterLinked(g.Dataset, lr); err != nil {
				return fmt.Errorf("grid %s: %w", g.ID, err)
			}
		}
	}

	prev, known := a.applied[g.ID]
	ctrl, exists := a.catalog.Get(g.ID)
	if known && exists && prev.Dataset == g.Dataset && prev.KeyField == g.KeyField {
		if err := ctrl.UpdateColumns(ctx, g.Columns); err != nil {
			return err
		}
		if ctrl.Mounted() && !reflect.DeepEqual(prev.LinkedRecords, g.LinkedRecords) {
			if err := ctrl.Reload(ctx); err != nil {
				return err
			}
		}
		a.applied[g.ID] = g
		a.logger.Debug("grid updated", "grid", g.ID)
		return nil
	}

	ctrl = a.factory(g)
	if replaced := a.catalog.Add(ctrl); replaced != nil {
		replaced.Unmount()
	}
	a.applied[g.ID] = g
	if err := ctrl.Mount(ctx); err != nil {
		return err
	}
	a.logger.Info("grid loaded", "grid", g.ID, "dataset", g.Dataset, "columns", len(g.Columns))
	return nil
}
