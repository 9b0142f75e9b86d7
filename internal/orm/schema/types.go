// Package schema provides the entity descriptors restgen derives endpoints from.
// An Entity is a typed table of fields and relationships plus the small
// per-operation configuration blocks that shape the generated schemas,
// filters and routes. Descriptors are immutable once registered.
package schema

import (
	"fmt"
	"strings"
)

// PrimitiveType represents the scalar types a field can hold
type PrimitiveType int

const (
	TypeUnknown PrimitiveType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDateTime
	TypeDate
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeDateTime:
		return "datetime"
	case TypeDate:
		return "date"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return TypeString, nil
	case "integer", "int":
		return TypeInteger, nil
	case "float", "number":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "datetime", "timestamp":
		return TypeDateTime, nil
	case "date":
		return TypeDate, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// IsNumeric returns true for integer and float types
func (p PrimitiveType) IsNumeric() bool {
	return p == TypeInteger || p == TypeFloat
}

// IsTemporal returns true for datetime and date types
func (p PrimitiveType) IsTemporal() bool {
	return p == TypeDateTime || p == TypeDate
}

// IsOrdered reports whether comparator filters apply to the type
func (p PrimitiveType) IsOrdered() bool {
	return p.IsNumeric() || p.IsTemporal()
}

// Field describes one scalar column of an entity
type Field struct {
	Name     string
	Type     PrimitiveType
	Nullable bool
	Unique   bool
	Primary  bool
}

// Cardinality is the number of records on the far side of a relationship
type Cardinality int

const (
	One Cardinality = iota
	Many
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// ParseCardinality converts a string to a Cardinality
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(s) {
	case "", "one":
		return One, nil
	case "many":
		return Many, nil
	default:
		return One, fmt.Errorf("unknown cardinality: %s", s)
	}
}

// Relationship describes a reference from one entity to another.
//
// Storage mapping:
//   - One: ForeignKey is a field of the owning entity holding the target's primary key.
//   - Many without JoinTable: ForeignKey is a field of the target holding the owner's primary key.
//   - Many with JoinTable: JoinColumn references the owner, InverseColumn the target.
type Relationship struct {
	Name          string
	Target        string
	Cardinality   Cardinality
	ForeignKey    string
	JoinTable     string
	JoinColumn    string
	InverseColumn string
}

// IsManyToMany returns true if the relationship is stored in an association table
func (r *Relationship) IsManyToMany() bool {
	return r.Cardinality == Many && r.JoinTable != ""
}

// ComputeFunc derives a value from a raw record
type ComputeFunc func(record map[string]interface{}) (interface{}, error)

// Computed is a derived attribute that can be listed in resource.serialize.
// Type must be declared for the attribute to be serializable.
type Computed struct {
	Name     string
	Type     PrimitiveType
	Nullable bool
	Compute  ComputeFunc
}

// PrimaryKeyStrategy describes how primary key values are assigned
type PrimaryKeyStrategy int

const (
	// KeyString requires the caller to supply the key on create
	KeyString PrimaryKeyStrategy = iota
	// KeyUUID generates a UUID v4 on create
	KeyUUID
	// KeyAutoIncrement lets the database assign an integer key
	KeyAutoIncrement
)

// String returns the string representation of the strategy
func (s PrimaryKeyStrategy) String() string {
	switch s {
	case KeyUUID:
		return "uuid"
	case KeyAutoIncrement:
		return "autoincrement"
	default:
		return "string"
	}
}

// ParsePrimaryKeyStrategy converts a string to a PrimaryKeyStrategy
func ParsePrimaryKeyStrategy(s string) (PrimaryKeyStrategy, error) {
	switch strings.ToLower(s) {
	case "", "string":
		return KeyString, nil
	case "uuid":
		return KeyUUID, nil
	case "autoincrement", "integer", "int":
		return KeyAutoIncrement, nil
	default:
		return KeyString, fmt.Errorf("unknown primary key strategy: %s", s)
	}
}

// AccessKind selects the row filter applied for a caller
type AccessKind int

const (
	AccessNone AccessKind = iota
	AccessOwnerOnly
	AccessOwnerOrPublic
)

// String returns the string representation of the access kind
func (k AccessKind) String() string {
	switch k {
	case AccessOwnerOnly:
		return "owner-only"
	case AccessOwnerOrPublic:
		return "owner-or-public"
	default:
		return "none"
	}
}

// ParseAccessKind converts a string to an AccessKind
func ParseAccessKind(s string) (AccessKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return AccessNone, nil
	case "owner-only", "private":
		return AccessOwnerOnly, nil
	case "owner-or-public", "publishable":
		return AccessOwnerOrPublic, nil
	default:
		return AccessNone, fmt.Errorf("unknown access control: %s", s)
	}
}

// AccessControl configures the entity's row filter.
//
// OwnerEntity names the entity that owns rows; Finalize adds the
// "<owner>_id" column and an owner relationship. IsUser marks the entity whose
// rows are the callers themselves: owner-only then compares the primary key.
type AccessControl struct {
	Kind         AccessKind
	OwnerEntity  string
	OwnerColumn  string
	PublicColumn string
	IsUser       bool
}

// Operation identifies one generated controller
type Operation int

const (
	OpCreate Operation = iota
	OpRead
	OpPatch
	OpDelete
	OpSearch
)

// AllOperations lists every operation in routing order
var AllOperations = []Operation{OpCreate, OpRead, OpPatch, OpDelete, OpSearch}

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpPatch:
		return "patch"
	case OpDelete:
		return "delete"
	case OpSearch:
		return "search"
	default:
		return "unknown"
	}
}

// ParseOperation converts a string to an Operation
func ParseOperation(s string) (Operation, error) {
	for _, op := range AllOperations {
		if op.String() == strings.ToLower(s) {
			return op, nil
		}
	}
	return OpCreate, fmt.Errorf("unknown operation: %s", s)
}

// OperationSet is the set of operations enabled for an entity
type OperationSet uint8

// AllOperationSet enables every operation
const AllOperationSet OperationSet = 1<<OpCreate | 1<<OpRead | 1<<OpPatch | 1<<OpDelete | 1<<OpSearch

// NewOperationSet builds a set from operations
func NewOperationSet(ops ...Operation) OperationSet {
	var s OperationSet
	for _, op := range ops {
		s |= 1 << op
	}
	return s
}

// Has reports whether op is enabled
func (s OperationSet) Has(op Operation) bool {
	return s&(1<<op) != 0
}

// Selector enables a search option either for every eligible field or for
// an explicit allow-list of field names.
type Selector struct {
	All   bool
	Names []string
}

// SelectAll returns a selector enabling every eligible field
func SelectAll() Selector {
	return Selector{All: true}
}

// SelectFields returns a selector enabling the named fields
func SelectFields(names ...string) Selector {
	return Selector{Names: names}
}

// Enabled reports whether the selector enables anything
func (s Selector) Enabled() bool {
	return s.All || len(s.Names) > 0
}

// Includes reports whether the selector enables the given field
func (s Selector) Includes(name string) bool {
	if s.All {
		return true
	}
	for _, n := range s.Names {
		if n == name {
			return true
		}
	}
	return false
}

// OperationConfig is the descriptive metadata and dependency list of one endpoint
type OperationConfig struct {
	Description  string
	Summary      string
	OperationID  string
	Tags         []string
	Dependencies []string
}

// ResourceConfig configures the entity as a whole
type ResourceConfig struct {
	Serialize    []string
	PopParams    []string
	Prefix       string
	Tags         []string
	Dependencies []string
}

// ReadConfig configures the read endpoint
type ReadConfig struct {
	OperationConfig
	RoutedRelationships []string
}

// SearchConfig configures the filter compiler
type SearchConfig struct {
	OperationConfig
	RequiredParams      []string
	ResultsLimit        int
	Eq                  Selector
	Gt                  Selector
	Gte                 Selector
	Lt                  Selector
	Lte                 Selector
	Contains            Selector
	Similarity          Selector
	SimilarityThreshold *float64
}

// DefaultResultsLimit is the page size used when results_limit is unset
const DefaultResultsLimit = 10

// Entity is the static description of one record type
type Entity struct {
	Name          string
	Table         string
	Fields        []*Field
	Relationships []*Relationship
	Computed      []*Computed
	KeyStrategy   PrimaryKeyStrategy
	Slug          string
	Access        AccessControl
	Operations    OperationSet

	Resource ResourceConfig
	Create   OperationConfig
	Patch    OperationConfig
	Delete   OperationConfig
	Read     ReadConfig
	Search   SearchConfig

	finalized bool
}

// NewEntity creates an entity with every operation enabled
func NewEntity(name string) *Entity {
	return &Entity{
		Name:       name,
		Table:      Pluralize(ToSnakeCase(name)),
		Operations: AllOperationSet,
	}
}

// Field returns the field with the given name
func (e *Entity) Field(name string) (*Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Relationship returns the relationship with the given name
func (e *Entity) Relationship(name string) (*Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// ComputedField returns the computed attribute with the given name
func (e *Entity) ComputedField(name string) (*Computed, bool) {
	for _, c := range e.Computed {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key field
func (e *Entity) PrimaryKey() *Field {
	for _, f := range e.Fields {
		if f.Primary {
			return f
		}
	}
	return nil
}

// LookupField returns the field used for external lookups: the slug when
// configured, otherwise the primary key.
func (e *Entity) LookupField() *Field {
	if e.Slug != "" {
		if f, ok := e.Field(e.Slug); ok {
			return f
		}
	}
	return e.PrimaryKey()
}

// Enabled reports whether the operation is enabled for the entity
func (e *Entity) Enabled(op Operation) bool {
	return e.Operations.Has(op)
}

// OperationConfig returns the configuration block of an operation
func (e *Entity) OperationConfig(op Operation) OperationConfig {
	switch op {
	case OpCreate:
		return e.Create
	case OpRead:
		return e.Read.OperationConfig
	case OpPatch:
		return e.Patch
	case OpDelete:
		return e.Delete
	case OpSearch:
		return e.Search.OperationConfig
	default:
		return OperationConfig{}
	}
}

// Popped reports whether a name is excluded from generated schemas
func (e *Entity) Popped(name string) bool {
	for _, p := range e.Resource.PopParams {
		if p == name {
			return true
		}
	}
	return false
}

// ResultsLimit returns the default search page size
func (e *Entity) ResultsLimit() int {
	if e.Search.ResultsLimit > 0 {
		return e.Search.ResultsLimit
	}
	return DefaultResultsLimit
}

// Finalize fills in derived defaults: the primary key field for the key
// strategy, the slug's uniqueness and the ownership columns. It is idempotent
// and called by Registry.Register.
func (e *Entity) Finalize() {
	if e.finalized {
		return
	}
	e.finalized = true

	if e.Table == "" {
		e.Table = Pluralize(ToSnakeCase(e.Name))
	}

	if e.PrimaryKey() == nil {
		if f, ok := e.Field("id"); ok {
			f.Primary = true
		} else {
			pk := &Field{Name: "id", Type: TypeString, Primary: true}
			if e.KeyStrategy == KeyAutoIncrement {
				pk.Type = TypeInteger
			}
			e.Fields = append([]*Field{pk}, e.Fields...)
		}
	}

	if e.Slug != "" {
		if f, ok := e.Field(e.Slug); ok {
			f.Unique = true
		}
	}

	e.finalizeOwnership()
}

func (e *Entity) finalizeOwnership() {
	ac := &e.Access
	if ac.Kind == AccessNone {
		return
	}
	if ac.IsUser {
		if ac.OwnerColumn == "" {
			ac.OwnerColumn = e.PrimaryKey().Name
		}
		return
	}
	if ac.OwnerEntity != "" {
		owner := ToSnakeCase(ac.OwnerEntity)
		if ac.OwnerColumn == "" {
			ac.OwnerColumn = owner + "_id"
		}
		if _, ok := e.Field(ac.OwnerColumn); !ok {
			e.Fields = append(e.Fields, &Field{Name: ac.OwnerColumn, Type: TypeString})
		}
		if _, ok := e.Relationship(owner); !ok {
			e.Relationships = append(e.Relationships, &Relationship{
				Name:        owner,
				Target:      ac.OwnerEntity,
				Cardinality: One,
				ForeignKey:  ac.OwnerColumn,
			})
		}
	}
	if ac.Kind == AccessOwnerOrPublic {
		if ac.PublicColumn == "" {
			ac.PublicColumn = "public"
		}
		if _, ok := e.Field(ac.PublicColumn); !ok {
			e.Fields = append(e.Fields, &Field{Name: ac.PublicColumn, Type: TypeBoolean})
		}
	}
}

// ToSnakeCase converts CamelCase to snake_case
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// ToCamelCase converts snake_case to CamelCase
func ToCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

// Pluralize adds simple English pluralization
func Pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") ||
		strings.HasSuffix(s, "ch") ||
		strings.HasSuffix(s, "sh") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsAny(s[len(s)-2:len(s)-1], "aeiou") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
