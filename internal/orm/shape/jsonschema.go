package shape

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// DefinitionsPath is the JSON pointer prefix used for references between schemas
const DefinitionsPath = "#/definitions/"

// JSONSchema describes the schema as a draft-07 JSON Schema document.
// References to other schemas point into DefinitionsPath.
func (s *Schema) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		properties[f.Name] = f.jsonSchema()
	}

	doc := map[string]interface{}{
		"title":      s.Name,
		"type":       "object",
		"properties": properties,
	}
	if required := s.Required(); len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func (f *Field) jsonSchema() map[string]interface{} {
	var prop map[string]interface{}

	switch f.Kind {
	case KindRef:
		prop = map[string]interface{}{"$ref": DefinitionsPath + f.Ref}
		if f.Nullable {
			prop = map[string]interface{}{"anyOf": []interface{}{prop, map[string]interface{}{"type": "null"}}}
		}
	case KindRefList:
		prop = map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"$ref": DefinitionsPath + f.Ref},
		}
	case KindIdentifierList:
		prop = map[string]interface{}{
			"type":  nullable("array", f.Nullable),
			"items": primitive(f.Type, false),
		}
	default:
		prop = primitive(f.Type, f.Nullable)
	}

	if f.Description != "" {
		prop["description"] = f.Description
	}
	if f.Default != nil {
		prop["default"] = f.Default
	}
	if f.Minimum != nil {
		prop["minimum"] = *f.Minimum
	}
	if f.Maximum != nil {
		prop["maximum"] = *f.Maximum
	}
	if f.ExclusiveMaximum != nil {
		prop["exclusiveMaximum"] = *f.ExclusiveMaximum
	}
	return prop
}

func primitive(t schema.PrimitiveType, isNullable bool) map[string]interface{} {
	prop := map[string]interface{}{}
	switch t {
	case schema.TypeInteger:
		prop["type"] = nullable("integer", isNullable)
	case schema.TypeFloat:
		prop["type"] = nullable("number", isNullable)
	case schema.TypeBoolean:
		prop["type"] = nullable("boolean", isNullable)
	case schema.TypeDateTime:
		prop["type"] = nullable("string", isNullable)
		prop["format"] = "date-time"
	case schema.TypeDate:
		prop["type"] = nullable("string", isNullable)
		prop["format"] = "date"
	case schema.TypeString:
		prop["type"] = nullable("string", isNullable)
	}
	return prop
}

func nullable(t string, isNullable bool) interface{} {
	if isNullable {
		return []string{t, "null"}
	}
	return t
}

// Definitions collects JSON Schema documents keyed by schema name, sorted
// for stable output
func Definitions(schemas ...*Schema) map[string]interface{} {
	sorted := make([]*Schema, len(schemas))
	copy(sorted, schemas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	defs := make(map[string]interface{}, len(sorted))
	for _, s := range sorted {
		defs[s.Name] = s.JSONSchema()
	}
	return map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"definitions": defs,
	}
}

// compile builds the gojsonschema validator once
func (s *Schema) compile() (*gojsonschema.Schema, error) {
	s.compileOnce.Do(func() {
		if !s.Resolved() {
			s.compileErr = fmt.Errorf("schema %s has unresolved references", s.Name)
			return
		}
		loader := gojsonschema.NewSchemaLoader()
		s.compiled, s.compileErr = loader.Compile(gojsonschema.NewGoLoader(s.JSONSchema()))
		if s.compileErr != nil {
			s.compileErr = fmt.Errorf("cannot compile schema %s: %w", s.Name, s.compileErr)
		}
	})
	return s.compiled, s.compileErr
}

// validate checks a loaded document against the schema
func (s *Schema) validate(doc gojsonschema.JSONLoader) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}

	result, err := compiled.Validate(doc)
	if err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "body", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, e := range result.Errors() {
		field := e.Field()
		if field == "(root)" {
			if missing, ok := e.Details()["property"].(string); ok {
				field = missing
			}
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: e.Description()})
	}
	return verr
}
