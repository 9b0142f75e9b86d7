// Package search compiles an entity's search configuration into a query
// schema and a predicate builder over the query builder.
package search

import (
	"fmt"
	"math"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/query"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// Parameter names shared by every search query
const (
	LimitParam     = "limit"
	PageParam      = "page"
	ThresholdParam = "threshold"
)

// Default similarity thresholds per dialect
const (
	DefaultEditDistanceThreshold = 300
	DefaultSimilarityThreshold   = 0.7
)

// Comparator suffixes for ordered fields, in query field order
var comparators = []struct {
	suffix   string
	operator query.Operator
	selector func(c *schema.SearchConfig) schema.Selector
}{
	{"eq", query.OpEqual, func(c *schema.SearchConfig) schema.Selector { return c.Eq }},
	{"gt", query.OpGreaterThan, func(c *schema.SearchConfig) schema.Selector { return c.Gt }},
	{"gte", query.OpGreaterThanOrEqual, func(c *schema.SearchConfig) schema.Selector { return c.Gte }},
	{"lt", query.OpLessThan, func(c *schema.SearchConfig) schema.Selector { return c.Lt }},
	{"lte", query.OpLessThanOrEqual, func(c *schema.SearchConfig) schema.Selector { return c.Lte }},
}

type matchKind int

const (
	matchCompare matchKind = iota
	matchExact
	matchContains
	matchSimilar
	matchContainsOrSimilar
)

// clause maps one query parameter onto a column
type clause struct {
	param    string
	column   string
	match    matchKind
	operator query.Operator
}

// Filter is the compiled search of one entity
type Filter struct {
	entity  *schema.Entity
	dialect dialect.Dialect
	clauses []clause

	similarity       bool
	fuzzyOperator    query.Operator
	defaultThreshold interface{}
	limit            int
}

// Compile derives the search query schema and its filter for an entity.
// Similarity matching needs a dialect with a fuzzy string function; any
// other dialect is a configuration error.
func Compile(e *schema.Entity, d dialect.Dialect) (*Filter, *shape.Schema, error) {
	cfg := &e.Search
	f := &Filter{
		entity:  e,
		dialect: d,
		limit:   e.ResultsLimit(),
	}
	s := shape.New(e.Name+"SearchQuery", e.Name)

	required := make(map[string]bool, len(cfg.RequiredParams))
	for _, name := range cfg.RequiredParams {
		required[name] = true
	}

	pk := e.PrimaryKey()
	for _, field := range e.Fields {
		if field == pk || e.Popped(field.Name) {
			continue
		}

		switch {
		case field.Type.IsOrdered():
			for _, cmp := range comparators {
				if !cmp.selector(cfg).Includes(field.Name) {
					continue
				}
				param := field.Name + "_" + cmp.suffix
				s.Add(queryField(param, field.Type, required[field.Name]))
				f.clauses = append(f.clauses, clause{param: param, column: field.Name, match: matchCompare, operator: cmp.operator})
			}

		case field.Type == schema.TypeString:
			match := matchExact
			contains := cfg.Contains.Includes(field.Name)
			similar := cfg.Similarity.Includes(field.Name)
			switch {
			case contains && similar:
				match = matchContainsOrSimilar
			case contains:
				match = matchContains
			case similar:
				match = matchSimilar
			}
			s.Add(queryField(field.Name, field.Type, required[field.Name]))
			f.clauses = append(f.clauses, clause{param: field.Name, column: field.Name, match: match})

		case field.Type == schema.TypeBoolean:
			s.Add(queryField(field.Name, field.Type, required[field.Name]))
			f.clauses = append(f.clauses, clause{param: field.Name, column: field.Name, match: matchExact, operator: query.OpEqual})
		}
	}

	for _, pf := range PageFields(f.limit) {
		s.Add(pf)
	}

	if cfg.Similarity.Enabled() {
		threshold, err := f.configureSimilarity(e)
		if err != nil {
			return nil, nil, err
		}
		s.Add(threshold)
	}

	return f, s, nil
}

func queryField(name string, t schema.PrimitiveType, required bool) *shape.Field {
	return &shape.Field{
		Name:     name,
		Kind:     shape.KindScalar,
		Type:     t,
		Required: required,
		Nullable: !required,
	}
}

func (f *Filter) configureSimilarity(e *schema.Entity) (*shape.Field, error) {
	configured := e.Search.SimilarityThreshold
	f.similarity = true

	switch f.dialect {
	case dialect.SQLite:
		threshold := int64(DefaultEditDistanceThreshold)
		if configured != nil {
			if *configured <= 99 || *configured != math.Trunc(*configured) {
				return nil, &schema.ConfigurationError{
					Entity:  e.Name,
					Field:   "search_similarity_threshold",
					Message: fmt.Sprintf("edit distance threshold must be an integer greater than 99, got %v", *configured),
				}
			}
			threshold = int64(*configured)
		}
		minimum := 100.0
		f.fuzzyOperator = query.OpEditDistanceBelow
		f.defaultThreshold = threshold
		return &shape.Field{
			Name: ThresholdParam, Kind: shape.KindScalar, Type: schema.TypeInteger,
			Default: threshold, Minimum: &minimum,
		}, nil

	case dialect.Postgres:
		threshold := DefaultSimilarityThreshold
		if configured != nil {
			if *configured >= 1.0 || *configured < 0 {
				return nil, &schema.ConfigurationError{
					Entity:  e.Name,
					Field:   "search_similarity_threshold",
					Message: fmt.Sprintf("similarity threshold must be in [0, 1), got %v", *configured),
				}
			}
			threshold = *configured
		}
		minimum, maximum := 0.0, 1.0
		f.fuzzyOperator = query.OpSimilarityAbove
		f.defaultThreshold = threshold
		return &shape.Field{
			Name: ThresholdParam, Kind: shape.KindScalar, Type: schema.TypeFloat,
			Default: threshold, Minimum: &minimum, ExclusiveMaximum: &maximum,
		}, nil

	default:
		return nil, &schema.ConfigurationError{
			Entity:  e.Name,
			Field:   "search_similarity",
			Message: fmt.Sprintf("similarity search is not supported on %s", f.dialect),
			Hint:    "use sqlite or postgresql, or disable search_similarity",
		}
	}
}

// Apply adds the predicates of every set value to qb. Unset and nil values
// are ignored.
func (f *Filter) Apply(qb *query.QueryBuilder, values map[string]interface{}) *query.QueryBuilder {
	threshold := f.defaultThreshold
	if v, ok := values[ThresholdParam]; ok && v != nil {
		threshold = v
	}

	for _, c := range f.clauses {
		v, ok := values[c.param]
		if !ok || v == nil {
			continue
		}

		switch c.match {
		case matchCompare:
			qb.Where(c.column, c.operator, v)
		case matchExact:
			qb.Where(c.column, query.OpEqual, v)
		case matchContains:
			qb.Where(c.column, query.OpLike, containsPattern(v))
		case matchSimilar:
			qb.Where(c.column, f.fuzzyOperator, query.Fuzzy{Term: fmt.Sprint(v), Threshold: threshold})
		case matchContainsOrSimilar:
			qb.WhereGroup(query.NewPredicateGroup(true).
				Add(c.column, query.OpLike, containsPattern(v)).
				Add(c.column, f.fuzzyOperator, query.Fuzzy{Term: fmt.Sprint(v), Threshold: threshold}))
		}
	}
	return qb
}

// Page returns the limit and page of a decoded query
func (f *Filter) Page(values map[string]interface{}) (limit, page int) {
	return PageOf(values, f.limit)
}

// PageFields returns the limit and page query fields. The limit must be at
// least 1 and the page at least 0.
func PageFields(defaultLimit int) []*shape.Field {
	one, zero := 1.0, 0.0
	return []*shape.Field{
		{
			Name: LimitParam, Kind: shape.KindScalar, Type: schema.TypeInteger,
			Default: int64(defaultLimit), Minimum: &one,
		},
		{
			Name: PageParam, Kind: shape.KindScalar, Type: schema.TypeInteger,
			Default: int64(0), Minimum: &zero,
		},
	}
}

// PageOf reads the limit and page of decoded query values
func PageOf(values map[string]interface{}, defaultLimit int) (limit, page int) {
	limit, page = defaultLimit, 0
	if v, ok := values[LimitParam].(int64); ok {
		limit = int(v)
	}
	if v, ok := values[PageParam].(int64); ok {
		page = int(v)
	}
	return limit, page
}

// Params returns the query parameter names in schema order, without the
// pagination and threshold parameters
func (f *Filter) Params() []string {
	params := make([]string, len(f.clauses))
	for i, c := range f.clauses {
		params[i] = c.param
	}
	return params
}

// TotalPages is floor(total/limit)+1
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 1
	}
	return total/limit + 1
}

func containsPattern(v interface{}) string {
	return "%" + query.EscapeLike(fmt.Sprint(v)) + "%"
}
