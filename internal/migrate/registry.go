package migrate

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds migration definitions keyed by id.
// Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	migrations map[string]Migration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{migrations: make(map[string]Migration)}
}

// Register adds m. Returns an error if m is malformed or its id is taken.
func (r *Registry) Register(m Migration) error {
	if err := m.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.migrations[m.ID]; dup {
		return fmt.Errorf("migration %q is already registered", m.ID)
	}
	r.migrations[m.ID] = m
	return nil
}

// Get returns the migration with the given id.
func (r *Registry) Get(id string) (Migration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.migrations[id]
	return m, ok
}

// List returns all migrations in ascending id order.
func (r *Registry) List() []Migration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Migration, 0, len(r.migrations))
	for _, m := range r.migrations {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Migration) int {
		return CompareIDs(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered migrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.migrations)
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that Register adds to.
func Default() *Registry {
	return defaultRegistry
}

// Register adds m to the default registry. It panics on error and is meant
// to be called from init().
func Register(m Migration) {
	if err := defaultRegistry.Register(m); err != nil {
		panic(err)
	}
}
