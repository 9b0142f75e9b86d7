// Package shape defines the derived request and response schemas of an
// entity. A Schema is a named, ordered list of fields that knows how to
// describe itself as JSON Schema, validate and decode payloads against that
// description, and render stored records.
package shape

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// Kind distinguishes how a schema field is produced
type Kind int

const (
	// KindScalar is a stored column
	KindScalar Kind = iota
	// KindComputed is derived from the record by a compute function
	KindComputed
	// KindIdentifier is the lookup key of one related record
	KindIdentifier
	// KindIdentifierList is a list of lookup keys of related records
	KindIdentifierList
	// KindRef embeds the Output of one related record
	KindRef
	// KindRefList embeds the Outputs of many related records
	KindRefList
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindComputed:
		return "computed"
	case KindIdentifier:
		return "identifier"
	case KindIdentifierList:
		return "identifier-list"
	case KindRef:
		return "ref"
	case KindRefList:
		return "ref-list"
	default:
		return "unknown"
	}
}

// IsRef reports whether the field embeds another schema
func (k Kind) IsRef() bool {
	return k == KindRef || k == KindRefList
}

// Field is one entry of a Schema
type Field struct {
	Name     string
	Kind     Kind
	Type     schema.PrimitiveType
	Required bool
	Nullable bool

	// Ref names the referenced schema; Target is set once resolved.
	Ref    string
	Target *Schema

	Relationship *schema.Relationship
	Computed     *schema.Computed

	Default          interface{}
	Minimum          *float64
	Maximum          *float64
	ExclusiveMaximum *float64
	Description      string
}

// Schema is a named, ordered mapping of field name to field
type Schema struct {
	Name   string
	Entity string
	Fields []*Field

	index map[string]int

	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
}

// New creates an empty schema
func New(name, entity string) *Schema {
	return &Schema{
		Name:   name,
		Entity: entity,
		index:  make(map[string]int),
	}
}

// Add appends a field. Adding a name twice replaces the earlier field in place.
func (s *Schema) Add(f *Field) *Schema {
	if i, ok := s.index[f.Name]; ok {
		s.Fields[i] = f
		return s
	}
	s.index[f.Name] = len(s.Fields)
	s.Fields = append(s.Fields, f)
	return s
}

// Field returns the named field
func (s *Schema) Field(name string) (*Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.Fields[i], true
}

// Names returns the field names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Required returns the names of required fields in order
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Unresolved returns the fields whose reference has not been resolved yet
func (s *Schema) Unresolved() []*Field {
	var out []*Field
	for _, f := range s.Fields {
		if f.Kind.IsRef() && f.Target == nil {
			out = append(out, f)
		}
	}
	return out
}

// Resolve binds every reference to the schema returned by lookup
func (s *Schema) Resolve(lookup func(name string) (*Schema, bool)) error {
	for _, f := range s.Unresolved() {
		target, ok := lookup(f.Ref)
		if !ok {
			return fmt.Errorf("schema %s: field %s references unknown schema %s", s.Name, f.Name, f.Ref)
		}
		f.Target = target
	}
	return nil
}

// Resolved reports whether every reference is bound
func (s *Schema) Resolved() bool {
	return len(s.Unresolved()) == 0
}
