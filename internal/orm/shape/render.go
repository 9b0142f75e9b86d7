package shape

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// Object is a JSON object that keeps the field order of the schema that
// rendered it
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject creates an empty object
func NewObject() *Object {
	return &Object{values: make(map[string]interface{})}
}

// Set assigns a key, appending it if new
func (o *Object) Set(key string, value interface{}) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value of a key
func (o *Object) Get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (o *Object) Keys() []string {
	return o.keys
}

// MarshalJSON encodes the object with keys in insertion order
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. Source key order is not kept: keys
// are sorted, and nested objects decode as plain maps.
func (o *Object) UnmarshalJSON(data []byte) error {
	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	o.keys = keys
	o.values = values
	if o.values == nil {
		o.values = make(map[string]interface{})
	}
	return nil
}

// Render builds the output object of a stored record. Scalar fields are
// normalized from driver values, computed fields are evaluated against the
// record, and reference fields take their value from embedded, which the
// caller fills with already rendered related objects.
func (s *Schema) Render(record map[string]interface{}, embedded map[string]interface{}) (*Object, error) {
	out := NewObject()
	for _, f := range s.Fields {
		switch f.Kind {
		case KindScalar:
			out.Set(f.Name, Normalize(f.Type, record[f.Name]))
		case KindComputed:
			v, err := f.compute(record)
			if err != nil {
				return nil, err
			}
			out.Set(f.Name, v)
		case KindRef:
			out.Set(f.Name, embedded[f.Name])
		case KindRefList:
			v, ok := embedded[f.Name]
			if !ok || v == nil {
				v = []*Object{}
			}
			out.Set(f.Name, v)
		}
	}
	return out, nil
}

// RenderShallow renders a record without its reference fields, the form in
// which it is embedded in another entity's output
func (s *Schema) RenderShallow(record map[string]interface{}) (*Object, error) {
	out := NewObject()
	for _, f := range s.Fields {
		if f.Kind.IsRef() {
			continue
		}
		if f.Kind == KindComputed {
			v, err := f.compute(record)
			if err != nil {
				return nil, err
			}
			out.Set(f.Name, v)
			continue
		}
		out.Set(f.Name, Normalize(f.Type, record[f.Name]))
	}
	return out, nil
}

func (f *Field) compute(record map[string]interface{}) (interface{}, error) {
	if f.Computed == nil || f.Computed.Compute == nil {
		return nil, nil
	}
	v, err := f.Computed.Compute(record)
	if err != nil {
		return nil, fmt.Errorf("computing %s: %w", f.Name, err)
	}
	return Normalize(f.Type, v), nil
}

// Normalize converts a driver value to its JSON representation for the
// field type
func Normalize(t schema.PrimitiveType, v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch t {
	case schema.TypeBoolean:
		switch b := v.(type) {
		case int64:
			return b != 0
		case string:
			parsed, err := strconv.ParseBool(b)
			if err == nil {
				return parsed
			}
		}
	case schema.TypeInteger:
		if s, ok := v.(string); ok {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
		}
	case schema.TypeFloat:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case schema.TypeDate:
		if tm, ok := v.(time.Time); ok {
			return tm.Format(DateLayout)
		}
	case schema.TypeDateTime:
		if tm, ok := v.(time.Time); ok {
			return tm.UTC().Format(time.RFC3339Nano)
		}
	}
	return v
}
