// Package derive builds the request and response schemas of every
// registered entity.
//
// Derivation runs in two phases. Declare creates each entity's schemas with
// references to sibling Output schemas by name only, so entities may refer to
// each other in any order and recursively. Resolve then binds every
// reference once all Outputs exist. Embedding is shallow: a referenced Output
// is rendered with its own scalar and computed fields, never its references.
package derive

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/search"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// Set holds the derived schemas of one entity
type Set struct {
	Entity         *schema.Entity
	Create         *shape.Schema
	Patch          *shape.Schema
	Output         *shape.Schema
	SearchQuery    *shape.Schema
	SearchResponse *shape.Schema
	Filter         *search.Filter
}

// Schemas returns every schema of the set in a stable order
func (s *Set) Schemas() []*shape.Schema {
	return []*shape.Schema{s.Create, s.Patch, s.Output, s.SearchQuery, s.SearchResponse}
}

// Engine holds the derived schemas of a sealed registry
type Engine struct {
	registry *schema.Registry
	dialect  dialect.Dialect
	sets     map[string]*Set
	byName   map[string]*shape.Schema
}

// OutputName returns the name of an entity's Output schema
func OutputName(entity string) string {
	return entity + "Output"
}

// Build derives the schemas of every entity in the registry. Configuration
// errors are collected per entity and returned together.
func Build(registry *schema.Registry, d dialect.Dialect) (*Engine, error) {
	if !registry.Sealed() {
		return nil, fmt.Errorf("registry must be sealed before deriving schemas")
	}

	e := &Engine{
		registry: registry,
		dialect:  d,
		sets:     make(map[string]*Set),
		byName:   make(map[string]*shape.Schema),
	}

	var errs []error
	for _, entity := range registry.All() {
		set, err := e.declare(entity)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.sets[entity.Name] = set
		for _, s := range set.Schemas() {
			e.byName[s.Name] = s
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := e.resolve(); err != nil {
		return nil, err
	}
	return e, nil
}

// Registry returns the registry the schemas were derived from
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Dialect returns the dialect the filters were compiled for
func (e *Engine) Dialect() dialect.Dialect {
	return e.dialect
}

// Set returns the schemas of an entity
func (e *Engine) Set(entity string) (*Set, bool) {
	s, ok := e.sets[entity]
	return s, ok
}

// Schema returns a schema by name
func (e *Engine) Schema(name string) (*shape.Schema, bool) {
	s, ok := e.byName[name]
	return s, ok
}

// Schemas returns every derived schema in registration order
func (e *Engine) Schemas() []*shape.Schema {
	var out []*shape.Schema
	for _, name := range e.registry.Names() {
		out = append(out, e.sets[name].Schemas()...)
	}
	return out
}

func (e *Engine) declare(entity *schema.Entity) (*Set, error) {
	output, err := declareOutput(entity)
	if err != nil {
		return nil, err
	}

	filter, query, err := search.Compile(entity, e.dialect)
	if err != nil {
		return nil, err
	}

	return &Set{
		Entity:         entity,
		Create:         e.declareCreate(entity),
		Patch:          e.declarePatch(entity),
		Output:         output,
		SearchQuery:    query,
		SearchResponse: search.ResponseSchema(entity, OutputName(entity.Name)),
		Filter:         filter,
	}, nil
}

func (e *Engine) resolve() error {
	lookup := func(name string) (*shape.Schema, bool) {
		s, ok := e.byName[name]
		return s, ok
	}
	for _, name := range e.registry.Names() {
		for _, s := range e.sets[name].Schemas() {
			if err := s.Resolve(lookup); err != nil {
				return err
			}
		}
	}
	return nil
}

// declareOutput lists every scalar field, then the serialized relationships
// and computed attributes in serialize order
func declareOutput(entity *schema.Entity) (*shape.Schema, error) {
	s := shape.New(OutputName(entity.Name), entity.Name)

	for _, f := range entity.Fields {
		if entity.Popped(f.Name) {
			continue
		}
		s.Add(&shape.Field{
			Name:     f.Name,
			Kind:     shape.KindScalar,
			Type:     f.Type,
			Required: !f.Nullable,
			Nullable: f.Nullable,
		})
	}

	for _, name := range entity.Resource.Serialize {
		if entity.Popped(name) {
			continue
		}
		if _, ok := entity.Field(name); ok {
			continue
		}
		if rel, ok := entity.Relationship(name); ok {
			field := &shape.Field{
				Name:         rel.Name,
				Ref:          OutputName(rel.Target),
				Relationship: rel,
			}
			if rel.Cardinality == schema.Many {
				field.Kind = shape.KindRefList
				field.Required = true
			} else {
				field.Kind = shape.KindRef
				field.Nullable = true
			}
			s.Add(field)
			continue
		}
		if c, ok := entity.ComputedField(name); ok && c.Type != schema.TypeUnknown {
			s.Add(&shape.Field{
				Name:     c.Name,
				Kind:     shape.KindComputed,
				Type:     c.Type,
				Required: !c.Nullable,
				Nullable: c.Nullable,
				Computed: c,
			})
			continue
		}
		return nil, &schema.ConfigurationError{
			Entity:  entity.Name,
			Field:   name,
			Message: "serialize names neither a field, a relationship nor a typed computed attribute",
			Hint:    "declare a type on the computed attribute or remove it from resource.serialize",
		}
	}

	return s, nil
}

// ForeignKeyOf returns the one relationship stored in the named column
func ForeignKeyOf(entity *schema.Entity, column string) *schema.Relationship {
	for _, rel := range entity.Relationships {
		if rel.Cardinality == schema.One && rel.ForeignKey == column {
			return rel
		}
	}
	return nil
}

// inputScalars returns the scalar fields a client may write
func inputScalars(entity *schema.Entity, includeKey bool) []*schema.Field {
	pk := entity.PrimaryKey()
	var fields []*schema.Field
	for _, f := range entity.Fields {
		if entity.Popped(f.Name) {
			continue
		}
		if f == pk && !includeKey {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// identifierFields returns one optional identifier field per relationship,
// typed after the target's lookup key
func (e *Engine) identifierFields(entity *schema.Entity) []*shape.Field {
	var fields []*shape.Field
	for _, rel := range entity.Relationships {
		if entity.Popped(rel.Name) {
			continue
		}
		keyType := schema.TypeString
		if target, ok := e.registry.Get(rel.Target); ok {
			keyType = target.LookupField().Type
		}
		kind := shape.KindIdentifier
		if rel.Cardinality == schema.Many {
			kind = shape.KindIdentifierList
		}
		fields = append(fields, &shape.Field{
			Name:         rel.Name,
			Kind:         kind,
			Type:         keyType,
			Nullable:     true,
			Relationship: rel,
		})
	}
	return fields
}

// declareCreate requires every non-nullable field except the foreign key
// columns of one relationships, which may be given through the relationship
// identifier instead.
func (e *Engine) declareCreate(entity *schema.Entity) *shape.Schema {
	s := shape.New(entity.Name+"Create", entity.Name)
	for _, f := range inputScalars(entity, entity.KeyStrategy == schema.KeyString) {
		s.Add(&shape.Field{
			Name:     f.Name,
			Kind:     shape.KindScalar,
			Type:     f.Type,
			Required: !f.Nullable && ForeignKeyOf(entity, f.Name) == nil,
			Nullable: f.Nullable,
		})
	}
	for _, f := range e.identifierFields(entity) {
		s.Add(f)
	}
	return s
}

// declarePatch makes every create field optional. The primary key is never
// patchable since it addresses the row.
func (e *Engine) declarePatch(entity *schema.Entity) *shape.Schema {
	s := shape.New(entity.Name+"Patch", entity.Name)
	for _, f := range inputScalars(entity, false) {
		s.Add(&shape.Field{
			Name:     f.Name,
			Kind:     shape.KindScalar,
			Type:     f.Type,
			Nullable: true,
		})
	}
	for _, f := range e.identifierFields(entity) {
		s.Add(f)
	}
	return s
}
