package columns

import (
	"fmt"
	"sort"
	"sync"
)

// HostFunc is a function declared by the host application. binding is the
// component instance the function was resolved against.
type HostFunc func(binding any, args ...any) (any, error)

// Registry holds the host functions that symbolic references may name.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]HostFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]HostFunc)}
}

// Register adds a host function under name.
// Panics if the name is already registered.
func (r *Registry) Register(name string, fn HostFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("host function already registered: %s", name))
	}
	r.funcs[name] = fn
}

// Lookup returns the host function registered under name.
func (r *Registry) Lookup(name string) (HostFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
