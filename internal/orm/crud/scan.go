package crud

import (
	"strconv"
	"time"

	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

// scanKey converts a path key to the type of the lookup field. A key that
// cannot be converted addresses no row.
func scanKey(f *schema.Field, raw string) (interface{}, bool) {
	switch f.Type {
	case schema.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case schema.TypeFloat:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false
		}
		return b, true
	case schema.TypeDate:
		t, err := time.Parse(shape.DateLayout, raw)
		if err != nil {
			return nil, false
		}
		return t, true
	case schema.TypeDateTime:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, false
		}
		return t, true
	}
	return raw, true
}

// scalarValues returns the present scalar fields of a decoded payload.
// With skipNull, present nulls are treated as absent.
func scalarValues(s *shape.Schema, input map[string]interface{}, skipNull bool) map[string]interface{} {
	values := make(map[string]interface{})
	for _, f := range s.Fields {
		if f.Kind != shape.KindScalar {
			continue
		}
		v, ok := input[f.Name]
		if !ok || (skipNull && v == nil) {
			continue
		}
		values[f.Name] = v
	}
	return values
}

// identifiers returns the present, non-null relationship identifiers of a
// decoded payload in schema order
func identifiers(s *shape.Schema, input map[string]interface{}) []identifier {
	var out []identifier
	for _, f := range s.Fields {
		if f.Kind != shape.KindIdentifier && f.Kind != shape.KindIdentifierList {
			continue
		}
		v, ok := input[f.Name]
		if !ok || v == nil {
			continue
		}
		out = append(out, identifier{rel: f.Relationship, value: v})
	}
	return out
}

type identifier struct {
	rel   *schema.Relationship
	value interface{}
}

// keys returns the values of an identifier list
func (i identifier) keys() []interface{} {
	if list, ok := i.value.([]interface{}); ok {
		return list
	}
	return []interface{}{i.value}
}
