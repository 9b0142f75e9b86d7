package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError is a startup-time problem with an entity model.
// A model that produces one must not be served.
type ConfigurationError struct {
	Entity  string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	var b strings.Builder

	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Validator checks entities for structural and cross-entity consistency
type Validator struct {
	entities map[string]*Entity
	errors   []error
}

// NewValidator creates a validator over the given entities
func NewValidator(entities map[string]*Entity) *Validator {
	return &Validator{entities: entities}
}

func (v *Validator) fail(entity, field, hint, format string, args ...interface{}) {
	v.errors = append(v.errors, &ConfigurationError{
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	})
}

// ValidateStructural checks an entity in isolation
func (v *Validator) ValidateStructural(e *Entity) error {
	v.errors = nil
	v.structural(e)
	return errors.Join(v.errors...)
}

// Validate checks every entity including references between them
func (v *Validator) Validate() error {
	v.errors = nil
	for _, name := range sortedNames(v.entities) {
		e := v.entities[name]
		v.structural(e)
		v.references(e)
	}
	return errors.Join(v.errors...)
}

func (v *Validator) structural(e *Entity) {
	if e.Name == "" {
		v.fail("", "", "", "entity name is required")
		return
	}

	seen := make(map[string]bool)
	primaries := 0
	for _, f := range e.Fields {
		if f.Name == "" {
			v.fail(e.Name, "", "", "field name is required")
			continue
		}
		if seen[f.Name] {
			v.fail(e.Name, f.Name, "", "duplicate field")
		}
		seen[f.Name] = true
		if f.Type == TypeUnknown {
			v.fail(e.Name, f.Name, "use one of string, integer, float, boolean, datetime, date", "field has no type")
		}
		if f.Primary {
			primaries++
			if f.Nullable {
				v.fail(e.Name, f.Name, "", "primary key cannot be nullable")
			}
		}
	}
	if primaries != 1 {
		v.fail(e.Name, "", "", "exactly one primary key field is required, found %d", primaries)
	}

	if pk := e.PrimaryKey(); pk != nil {
		switch e.KeyStrategy {
		case KeyAutoIncrement:
			if pk.Type != TypeInteger {
				v.fail(e.Name, pk.Name, "", "autoincrement primary key must be an integer")
			}
		case KeyString, KeyUUID:
			if pk.Type != TypeString {
				v.fail(e.Name, pk.Name, "", "%s primary key must be a string", e.KeyStrategy)
			}
		}
	}

	if e.Slug != "" {
		f, ok := e.Field(e.Slug)
		if !ok {
			v.fail(e.Name, e.Slug, "", "slug field does not exist")
		} else if f.Type != TypeString {
			v.fail(e.Name, e.Slug, "", "slug field must be a string")
		}
	}

	for _, r := range e.Relationships {
		if r.Name == "" || r.Target == "" {
			v.fail(e.Name, r.Name, "", "relationship requires a name and a target")
			continue
		}
		if seen[r.Name] {
			v.fail(e.Name, r.Name, "", "relationship name collides with a field")
		}
		seen[r.Name] = true
		if r.Cardinality == One && r.ForeignKey != "" {
			if _, ok := e.Field(r.ForeignKey); !ok {
				v.fail(e.Name, r.Name, "declare the column as a field", "foreign key %s does not exist", r.ForeignKey)
			}
		}
		if r.JoinTable != "" && (r.JoinColumn == "" || r.InverseColumn == "") {
			v.fail(e.Name, r.Name, "", "join table %s requires join_column and inverse_column", r.JoinTable)
		}
	}

	for _, c := range e.Computed {
		if seen[c.Name] {
			v.fail(e.Name, c.Name, "", "computed attribute name collides with a field or relationship")
		}
		seen[c.Name] = true
	}

	ac := e.Access
	if ac.Kind != AccessNone {
		if ac.OwnerColumn == "" {
			v.fail(e.Name, "", "set access.owner_entity or access.owner_column", "access control %s has no owner column", ac.Kind)
		} else if _, ok := e.Field(ac.OwnerColumn); !ok {
			v.fail(e.Name, ac.OwnerColumn, "", "owner column does not exist")
		}
		if ac.Kind == AccessOwnerOrPublic {
			f, ok := e.Field(ac.PublicColumn)
			if !ok || f.Type != TypeBoolean {
				v.fail(e.Name, ac.PublicColumn, "", "public column must be a boolean field")
			}
		}
	}

	if e.Search.ResultsLimit < 0 {
		v.fail(e.Name, "", "", "search.results_limit must be positive")
	}
	for _, name := range e.Search.RequiredParams {
		if !seen[name] {
			v.fail(e.Name, name, "", "search.required_params names an unknown field")
		}
	}
}

func (v *Validator) references(e *Entity) {
	for _, r := range e.Relationships {
		target, ok := v.entities[r.Target]
		if !ok {
			v.fail(e.Name, r.Name, "", "relationship targets unknown entity %s", r.Target)
			continue
		}
		if r.Cardinality == Many && r.JoinTable == "" {
			if r.ForeignKey == "" {
				v.fail(e.Name, r.Name, "set foreign_key or join_table", "many relationship has no storage mapping")
			} else if _, ok := target.Field(r.ForeignKey); !ok {
				v.fail(e.Name, r.Name, "", "foreign key %s does not exist on %s", r.ForeignKey, target.Name)
			}
		}
	}

	for _, name := range e.Read.RoutedRelationships {
		if _, ok := e.Relationship(name); !ok {
			v.fail(e.Name, name, "", "read.routed_relationships names an unknown relationship")
		}
	}

	if e.Access.OwnerEntity != "" {
		if _, ok := v.entities[e.Access.OwnerEntity]; !ok {
			v.fail(e.Name, "", "", "access.owner_entity %s is not registered", e.Access.OwnerEntity)
		}
	}
}
