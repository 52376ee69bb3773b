package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a fresh adapter instance.
type Constructor func() Adapter

// Registry maps adapter names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds ctor under name, replacing any previous registration.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs the named adapter.
func (r *Registry) New(name string) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
	}
	return ctor(), nil
}

// Build constructs the named adapters, or every registered adapter when names
// is empty. Disabled adapters are left out unless named explicitly.
func (r *Registry) Build(names []string, enabled func(name string) bool) ([]Adapter, error) {
	explicit := len(names) > 0
	if !explicit {
		names = r.Names()
	}
	seen := make(map[string]bool, len(names))
	var out []Adapter
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if !explicit && enabled != nil && !enabled(n) {
			continue
		}
		a, err := r.New(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
