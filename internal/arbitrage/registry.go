package arbitrage

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named volume searchers for selection by config.
type Registry struct {
	searchers map[string]VolumeSearcher
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add searchers.
func NewRegistry() *Registry {
	return &Registry{searchers: make(map[string]VolumeSearcher)}
}

// DefaultRegistry returns a registry with "step" and "ternary" registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewStepSearch())
	r.Register(NewTernarySearch(TernarySearchConfig{}))
	return r
}

// Register adds a searcher under its own name.
func (r *Registry) Register(s VolumeSearcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchers[s.Name()] = s
}

// Get returns the searcher by name. An empty name selects "step".
func (r *Registry) Get(name string) (VolumeSearcher, error) {
	if name == "" {
		name = "step"
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.searchers[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage: volume searcher %q not found", name)
	}
	return s, nil
}

// List returns all registered searcher names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.searchers))
	for n := range r.searchers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
