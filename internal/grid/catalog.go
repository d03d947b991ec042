package grid

import (
	"context"
	"sort"
	"sync"
)

// Catalog holds the controllers served by one process, keyed by grid id.
type Catalog struct {
	mu    sync.RWMutex
	grids map[string]*Controller
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{grids: make(map[string]*Controller)}
}

// Add registers c, replacing any controller with the same id. The replaced
// controller is returned so the caller can unmount it.
func (cat *Catalog) Add(c *Controller) (replaced *Controller) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	replaced = cat.grids[c.ID()]
	cat.grids[c.ID()] = c
	return replaced
}

// Get returns the controller for id.
func (cat *Catalog) Get(id string) (*Controller, bool) {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	c, ok := cat.grids[id]
	return c, ok
}

// Remove drops the controller for id and returns it.
func (cat *Catalog) Remove(id string) (*Controller, bool) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	c, ok := cat.grids[id]
	delete(cat.grids, id)
	return c, ok
}

// IDs returns the registered grid ids in order.
func (cat *Catalog) IDs() []string {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	ids := make([]string, 0, len(cat.grids))
	for id := range cat.grids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MountAll mounts every unmounted controller and returns the first error.
func (cat *Catalog) MountAll(ctx context.Context) error {
	for _, id := range cat.IDs() {
		c, _ := cat.Get(id)
		if c.Mounted() {
			continue
		}
		if err := c.Mount(ctx); err != nil {
			return err
		}
	}
	return nil
}

// UnmountAll unmounts every controller.
func (cat *Catalog) UnmountAll() {
	for _, id := range cat.IDs() {
		if c, ok := cat.Get(id); ok {
			c.Unmount()
		}
	}
}
