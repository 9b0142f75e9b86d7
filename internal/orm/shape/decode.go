package shape

import (
	"bytes"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// DateLayout is the wire format of date fields
const DateLayout = "2006-01-02"

// number is satisfied by the json.Number produced by a decoder with UseNumber
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// Decode validates a JSON request body against the schema and returns the
// fields it contains converted to Go values. Unknown keys are dropped.
// Present null values are kept as nil.
func (s *Schema) Decode(body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	if err := s.validate(gojsonschema.NewBytesLoader(body)); err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, Invalid("body", "malformed JSON: %v", err)
	}

	return s.Coerce(raw)
}

// DecodeQuery parses query string values against the schema, validates them
// and fills in defaults for absent fields
func (s *Schema) DecodeQuery(values url.Values) (map[string]interface{}, error) {
	doc := make(map[string]interface{})
	verr := &ValidationError{}

	for _, f := range s.Fields {
		raw, ok := values[f.Name]
		if !ok || len(raw) == 0 {
			continue
		}
		v, err := parseQueryValue(f, raw)
		if err != nil {
			verr.Errors = append(verr.Errors, FieldError{Field: f.Name, Message: err.Error()})
			continue
		}
		doc[f.Name] = v
	}
	if len(verr.Errors) > 0 {
		return nil, verr
	}

	if err := s.validate(gojsonschema.NewGoLoader(doc)); err != nil {
		return nil, err
	}

	out, err := s.Coerce(doc)
	if err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		if _, ok := out[f.Name]; !ok && f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out, nil
}

// Coerce converts JSON-decoded values of known fields to the Go types the
// storage layer binds: int64, float64, bool, string and time.Time
func (s *Schema) Coerce(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	verr := &ValidationError{}

	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		if v == nil {
			out[f.Name] = nil
			continue
		}

		var converted interface{}
		var err error
		if f.Kind == KindIdentifierList {
			items, isList := v.([]interface{})
			if !isList {
				verr.Errors = append(verr.Errors, FieldError{Field: f.Name, Message: "must be a list"})
				continue
			}
			list := make([]interface{}, len(items))
			for i, item := range items {
				if list[i], err = convert(f.Type, item); err != nil {
					break
				}
			}
			converted = list
		} else {
			converted, err = convert(f.Type, v)
		}
		if err != nil {
			verr.Errors = append(verr.Errors, FieldError{Field: f.Name, Message: err.Error()})
			continue
		}
		out[f.Name] = converted
	}

	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return out, nil
}

func convert(t schema.PrimitiveType, v interface{}) (interface{}, error) {
	switch t {
	case schema.TypeInteger:
		return toInt64(v)
	case schema.TypeFloat:
		return toFloat64(v)
	case schema.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.New("must be a boolean")
		}
		return b, nil
	case schema.TypeDateTime:
		str, ok := v.(string)
		if !ok {
			if tm, isTime := v.(time.Time); isTime {
				return tm, nil
			}
			return nil, errors.New("must be a date-time string")
		}
		tm, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return nil, errors.New("must be an RFC 3339 date-time")
		}
		return tm, nil
	case schema.TypeDate:
		str, ok := v.(string)
		if !ok {
			if tm, isTime := v.(time.Time); isTime {
				return tm, nil
			}
			return nil, errors.New("must be a date string")
		}
		tm, err := time.Parse(DateLayout, str)
		if err != nil {
			return nil, errors.New("must be a YYYY-MM-DD date")
		}
		return tm, nil
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case number:
			return s.String(), nil
		default:
			return nil, errors.New("must be a string")
		}
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.New("must be an integer")
		}
		return int64(n), nil
	case number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, errors.New("must be an integer")
		}
		return int64(f), nil
	default:
		return 0, errors.New("must be an integer")
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case number:
		return n.Float64()
	default:
		return 0, errors.New("must be a number")
	}
}

// parseQueryValue converts the last query string value of a field into a
// JSON-compatible value for validation
func parseQueryValue(f *Field, raw []string) (interface{}, error) {
	str := strings.TrimSpace(raw[len(raw)-1])

	switch f.Type {
	case schema.TypeInteger:
		i, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, errors.New("must be an integer")
		}
		return i, nil
	case schema.TypeFloat:
		n, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, errors.New("must be a number")
		}
		return n, nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(str)
		if err != nil {
			return nil, errors.New("must be a boolean")
		}
		return b, nil
	default:
		return str, nil
	}
}
