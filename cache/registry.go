// Package cache marks cached REST query results stale when events arrive and
// refetches them lazily on the next read.
package cache

import (
	"slices"
	"sync"
)

// Invalidator marks a named query result as stale.
type Invalidator interface {
	MarkStale(name string)
}

// Registry is the process-wide set of stale query names. Marking is set
// union: marking an already stale query again changes nothing.
type Registry struct {
	stale map[string]struct{}
	mu    sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stale: make(map[string]struct{})}
}

// MarkStale flags name for refetch on its next read.
func (r *Registry) MarkStale(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale[name] = struct{}{}
}

// IsStale reports whether name is flagged without clearing it.
func (r *Registry) IsStale(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stale[name]
	return ok
}

// Consume clears the flag for name and reports whether it was set.
func (r *Registry) Consume(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stale[name]; !ok {
		return false
	}
	delete(r.stale, name)
	return true
}

// Stale returns the flagged names in sorted order.
func (r *Registry) Stale() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.stale))
	for name := range r.stale {
		names = append(names, name)
	}
	r.mu.Unlock()
	slices.Sort(names)
	return names
}

// Reset clears every flag, as a full reload would.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.stale)
}
