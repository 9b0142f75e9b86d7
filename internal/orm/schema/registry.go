package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds every entity of a model. Entities are registered during
// startup; after Seal the registry is read-only.
type Registry struct {
	entities map[string]*Entity
	byTable  map[string]*Entity
	order    []string
	sealed   bool
	mu       sync.RWMutex
}

// NewRegistry creates a new entity registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		byTable:  make(map[string]*Entity),
	}
}

// Register finalizes and registers an entity. Relationship targets are not
// checked here so that entities may reference ones registered later; call
// Seal once every entity is in.
func (r *Registry) Register(e *Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed, cannot register %s", e.Name)
	}
	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("entity %s is already registered", e.Name)
	}

	e.Finalize()

	if other, exists := r.byTable[e.Table]; exists {
		return fmt.Errorf("entity %s uses table %s already used by %s", e.Name, e.Table, other.Name)
	}

	if err := NewValidator(nil).ValidateStructural(e); err != nil {
		return fmt.Errorf("entity validation failed for %s: %w", e.Name, err)
	}

	r.entities[e.Name] = e
	r.byTable[e.Table] = e
	r.order = append(r.order, e.Name)
	return nil
}

// MustRegister registers entities and panics on error
func (r *Registry) MustRegister(entities ...*Entity) *Registry {
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal validates references between all registered entities and freezes
// the registry.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := NewValidator(r.entities).Validate(); err != nil {
		return err
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get retrieves an entity by name
func (r *Registry) Get(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entities[name]
	return e, exists
}

// ByTable retrieves an entity by its table name
func (r *Registry) ByTable(table string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.byTable[table]
	return e, exists
}

// All returns every entity in registration order
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.entities[name])
	}
	return result
}

// Names returns entity names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}

// DependencyOrder returns entity names with foreign-key targets first
func (r *Registry) DependencyOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return NewRelationshipGraph(r.entities).TopologicalSort()
}

func sortedNames(entities map[string]*Entity) []string {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
