package schema

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// modelFile is the YAML layout of an entity model
type modelFile struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name          string            `yaml:"name"`
	Table         string            `yaml:"table"`
	PrimaryKey    string            `yaml:"primary_key"`
	Slug          string            `yaml:"slug"`
	Operations    []string          `yaml:"operations"`
	Access        accessDoc         `yaml:"access"`
	Fields        []fieldDoc        `yaml:"fields"`
	Relationships []relationshipDoc `yaml:"relationships"`
	Computed      []computedDoc     `yaml:"computed"`
	Resource      resourceDoc       `yaml:"resource"`
	Create        operationDoc      `yaml:"create"`
	Patch         operationDoc      `yaml:"patch"`
	Delete        operationDoc      `yaml:"delete"`
	Read          readDoc           `yaml:"read"`
	Search        searchDoc         `yaml:"search"`
}

type accessDoc struct {
	Kind         string `yaml:"kind"`
	OwnerEntity  string `yaml:"owner_entity"`
	OwnerColumn  string `yaml:"owner_column"`
	PublicColumn string `yaml:"public_column"`
	User         bool   `yaml:"user"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Unique   bool   `yaml:"unique"`
	Primary  bool   `yaml:"primary"`
}

type relationshipDoc struct {
	Name          string `yaml:"name"`
	Target        string `yaml:"target"`
	Cardinality   string `yaml:"cardinality"`
	ForeignKey    string `yaml:"foreign_key"`
	JoinTable     string `yaml:"join_table"`
	JoinColumn    string `yaml:"join_column"`
	InverseColumn string `yaml:"inverse_column"`
}

type computedDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Template string `yaml:"template"`
}

type resourceDoc struct {
	Serialize    []string `yaml:"serialize"`
	PopParams    []string `yaml:"pop_params"`
	Prefix       string   `yaml:"prefix"`
	Tags         []string `yaml:"tags"`
	Dependencies []string `yaml:"dependencies"`
}

type operationDoc struct {
	Description  string   `yaml:"description"`
	Summary      string   `yaml:"summary"`
	OperationID  string   `yaml:"operation_id"`
	Tags         []string `yaml:"tags"`
	Dependencies []string `yaml:"dependencies"`
}

type readDoc struct {
	operationDoc        `yaml:",inline"`
	RoutedRelationships []string `yaml:"routed_relationships"`
}

type searchDoc struct {
	operationDoc        `yaml:",inline"`
	RequiredParams      []string `yaml:"required_params"`
	ResultsLimit        int      `yaml:"results_limit"`
	Eq                  Selector `yaml:"search_eq"`
	Gt                  Selector `yaml:"search_gt"`
	Gte                 Selector `yaml:"search_gte"`
	Lt                  Selector `yaml:"search_lt"`
	Lte                 Selector `yaml:"search_lte"`
	Contains            Selector `yaml:"search_contains"`
	Similarity          Selector `yaml:"search_similarity"`
	SimilarityThreshold *float64 `yaml:"search_similarity_threshold"`
}

// UnmarshalYAML accepts either a boolean or a list of field names
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var all bool
		if err := node.Decode(&all); err != nil {
			return fmt.Errorf("line %d: expected boolean or list of fields", node.Line)
		}
		*s = Selector{All: all}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*s = Selector{Names: names}
		return nil
	default:
		return fmt.Errorf("line %d: expected boolean or list of fields", node.Line)
	}
}

func (d operationDoc) config() OperationConfig {
	return OperationConfig{
		Description:  d.Description,
		Summary:      d.Summary,
		OperationID:  d.OperationID,
		Tags:         d.Tags,
		Dependencies: d.Dependencies,
	}
}

// LoadModelFile reads a YAML model file into a sealed registry
func LoadModelFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return LoadModel(data)
}

// LoadModel parses a YAML model into a sealed registry
func LoadModel(data []byte) (*Registry, error) {
	var doc modelFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if len(doc.Entities) == 0 {
		return nil, &ConfigurationError{Message: "model declares no entities"}
	}

	registry := NewRegistry()
	for _, ed := range doc.Entities {
		e, err := ed.entity()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}

	if err := registry.Seal(); err != nil {
		return nil, err
	}
	return registry, nil
}

func (d entityDoc) entity() (*Entity, error) {
	e := NewEntity(d.Name)
	if d.Table != "" {
		e.Table = d.Table
	}
	e.Slug = d.Slug

	var err error
	if e.KeyStrategy, err = ParsePrimaryKeyStrategy(d.PrimaryKey); err != nil {
		return nil, &ConfigurationError{Entity: d.Name, Message: err.Error()}
	}

	if len(d.Operations) > 0 {
		var ops []Operation
		for _, name := range d.Operations {
			op, err := ParseOperation(name)
			if err != nil {
				return nil, &ConfigurationError{Entity: d.Name, Message: err.Error()}
			}
			ops = append(ops, op)
		}
		e.Operations = NewOperationSet(ops...)
	}

	kind, err := ParseAccessKind(d.Access.Kind)
	if err != nil {
		return nil, &ConfigurationError{Entity: d.Name, Message: err.Error()}
	}
	e.Access = AccessControl{
		Kind:         kind,
		OwnerEntity:  d.Access.OwnerEntity,
		OwnerColumn:  d.Access.OwnerColumn,
		PublicColumn: d.Access.PublicColumn,
		IsUser:       d.Access.User,
	}

	for _, fd := range d.Fields {
		typ, err := ParsePrimitiveType(fd.Type)
		if err != nil {
			return nil, &ConfigurationError{Entity: d.Name, Field: fd.Name, Message: err.Error()}
		}
		e.Fields = append(e.Fields, &Field{
			Name:     fd.Name,
			Type:     typ,
			Nullable: fd.Nullable,
			Unique:   fd.Unique,
			Primary:  fd.Primary,
		})
	}

	for _, rd := range d.Relationships {
		card, err := ParseCardinality(rd.Cardinality)
		if err != nil {
			return nil, &ConfigurationError{Entity: d.Name, Field: rd.Name, Message: err.Error()}
		}
		e.Relationships = append(e.Relationships, &Relationship{
			Name:          rd.Name,
			Target:        rd.Target,
			Cardinality:   card,
			ForeignKey:    rd.ForeignKey,
			JoinTable:     rd.JoinTable,
			JoinColumn:    rd.JoinColumn,
			InverseColumn: rd.InverseColumn,
		})
	}

	for _, cd := range d.Computed {
		c, err := cd.computed(d.Name)
		if err != nil {
			return nil, err
		}
		e.Computed = append(e.Computed, c)
	}

	e.Resource = ResourceConfig{
		Serialize:    d.Resource.Serialize,
		PopParams:    d.Resource.PopParams,
		Prefix:       d.Resource.Prefix,
		Tags:         d.Resource.Tags,
		Dependencies: d.Resource.Dependencies,
	}
	e.Create = d.Create.config()
	e.Patch = d.Patch.config()
	e.Delete = d.Delete.config()
	e.Read = ReadConfig{
		OperationConfig:     d.Read.config(),
		RoutedRelationships: d.Read.RoutedRelationships,
	}
	e.Search = SearchConfig{
		OperationConfig:     d.Search.config(),
		RequiredParams:      d.Search.RequiredParams,
		ResultsLimit:        d.Search.ResultsLimit,
		Eq:                  d.Search.Eq,
		Gt:                  d.Search.Gt,
		Gte:                 d.Search.Gte,
		Lt:                  d.Search.Lt,
		Lte:                 d.Search.Lte,
		Contains:            d.Search.Contains,
		Similarity:          d.Search.Similarity,
		SimilarityThreshold: d.Search.SimilarityThreshold,
	}

	return e, nil
}

// computed builds a template-backed attribute. A computed entry without a
// type is kept typeless so that serializing it fails at derivation.
func (d computedDoc) computed(entity string) (*Computed, error) {
	c := &Computed{Name: d.Name, Nullable: d.Nullable}
	if d.Type != "" {
		typ, err := ParsePrimitiveType(d.Type)
		if err != nil {
			return nil, &ConfigurationError{Entity: entity, Field: d.Name, Message: err.Error()}
		}
		c.Type = typ
	}
	if d.Template == "" {
		return c, nil
	}
	if c.Type != TypeString && c.Type != TypeUnknown {
		return nil, &ConfigurationError{Entity: entity, Field: d.Name, Message: "template attributes must be strings"}
	}

	tmpl, err := template.New(d.Name).Option("missingkey=zero").Parse(d.Template)
	if err != nil {
		return nil, &ConfigurationError{Entity: entity, Field: d.Name, Message: fmt.Sprintf("invalid template: %v", err)}
	}
	c.Compute = func(record map[string]interface{}) (interface{}, error) {
		data := make(map[string]interface{}, len(record))
		for k, v := range record {
			// some drivers return text columns as bytes
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			data[k] = v
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
	return c, nil
}
