// Package query provides predicate construction for WHERE clauses
package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpIsNull
	OpIsNotNull
	OpIsTrue
	// OpEditDistanceBelow matches editdist3(field, term) < threshold (SQLite)
	OpEditDistanceBelow
	// OpSimilarityAbove matches similarity(field, term) > threshold (PostgreSQL pg_trgm)
	OpSimilarityAbove
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpIsTrue:
		return "IS TRUE"
	case OpEditDistanceBelow:
		return "EDITDIST3 <"
	case OpSimilarityAbove:
		return "SIMILARITY >"
	default:
		return "UNKNOWN"
	}
}

// Fuzzy is the value of a fuzzy string match condition
type Fuzzy struct {
	Term      string
	Threshold interface{}
}

// Condition represents a WHERE condition
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
	Or       bool // true for OR, false for AND
}

// PredicateGroup represents a group of predicates combined with AND/OR
type PredicateGroup struct {
	Conditions []*Condition
	Groups     []*PredicateGroup
	Or         bool // true for OR, false for AND
}

// NewPredicateGroup creates a new predicate group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{
		Conditions: make([]*Condition, 0),
		Groups:     make([]*PredicateGroup, 0),
		Or:         or,
	}
}

// AddCondition adds a condition to the group
func (pg *PredicateGroup) AddCondition(cond *Condition) *PredicateGroup {
	pg.Conditions = append(pg.Conditions, cond)
	return pg
}

// Add adds a condition built from its parts
func (pg *PredicateGroup) Add(field string, op Operator, value interface{}) *PredicateGroup {
	return pg.AddCondition(&Condition{Field: field, Operator: op, Value: value})
}

// AddGroup adds a nested group
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) *PredicateGroup {
	pg.Groups = append(pg.Groups, group)
	return pg
}

// Empty reports whether the group renders to nothing
func (pg *PredicateGroup) Empty() bool {
	if len(pg.Conditions) > 0 {
		return false
	}
	for _, g := range pg.Groups {
		if !g.Empty() {
			return false
		}
	}
	return true
}

// ToSQL converts the predicate group to SQL
func (pg *PredicateGroup) ToSQL(d dialect.Dialect, paramCounter *int, args *[]interface{}) (string, error) {
	if len(pg.Conditions) == 0 && len(pg.Groups) == 0 {
		return "", nil
	}

	parts := make([]string, 0)

	for _, cond := range pg.Conditions {
		sql, err := conditionToSQL(d, cond, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, group := range pg.Groups {
		sql, err := group.ToSQL(d, paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, fmt.Sprintf("(%s)", sql))
		}
	}

	if len(parts) == 0 {
		return "", nil
	}

	connector := " AND "
	if pg.Or {
		connector = " OR "
	}

	return strings.Join(parts, connector), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes the wildcards of s so an OpLike pattern built from it
// matches s literally
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// bind appends a value and returns its placeholder
func bind(d dialect.Dialect, value interface{}, paramCounter *int, args *[]interface{}) string {
	*args = append(*args, value)
	p := d.Placeholder(*paramCounter)
	*paramCounter++
	return p
}

// conditionToSQL converts a condition to SQL with parameterized values
func conditionToSQL(d dialect.Dialect, cond *Condition, paramCounter *int, args *[]interface{}) (string, error) {
	validateIdentifier(cond.Field)

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		p := bind(d, cond.Value, paramCounter, args)
		return fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, p), nil

	case OpLike:
		p := bind(d, cond.Value, paramCounter, args)
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, cond.Field, p), nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator requires []interface{} value", cond.Operator)
		}
		if len(values) == 0 {
			// IN () is always false, NOT IN () always true
			if cond.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}

		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = bind(d, v, paramCounter, args)
		}
		return fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")), nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", cond.Field), nil

	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", cond.Field), nil

	case OpIsTrue:
		p := bind(d, true, paramCounter, args)
		return fmt.Sprintf("%s = %s", cond.Field, p), nil

	case OpEditDistanceBelow, OpSimilarityAbove:
		fuzzy, ok := cond.Value.(Fuzzy)
		if !ok {
			return "", fmt.Errorf("%s operator requires a Fuzzy value", cond.Operator)
		}
		fn, cmp := "editdist3", "<"
		if cond.Operator == OpSimilarityAbove {
			fn, cmp = "similarity", ">"
		}
		term := bind(d, fuzzy.Term, paramCounter, args)
		threshold := bind(d, fuzzy.Threshold, paramCounter, args)
		return fmt.Sprintf("%s(%s, %s) %s %s", fn, cond.Field, term, cmp, threshold), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}
