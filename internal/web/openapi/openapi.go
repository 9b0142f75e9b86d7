// Package openapi describes the generated endpoints as an OpenAPI 3.1
// document. Component schemas are the derived JSON Schemas of the model.
package openapi

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/derive"
	"github.com/conduit-lang/restgen/internal/orm/search"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	"github.com/conduit-lang/restgen/internal/web/response"
	"github.com/conduit-lang/restgen/internal/web/router"
)

// Version is the OpenAPI version documents declare
const Version = "3.1.0"

// ComponentsPath is the reference prefix of component schemas
const ComponentsPath = "#/components/schemas/"

// ErrorSchema names the component describing error bodies
const ErrorSchema = "Error"

// Info is the document's info section
type Info struct {
	Title       string
	Version     string
	Description string
	Servers     []Server
}

// Server is one entry of the servers section
type Server struct {
	URL         string
	Description string
}

// Generator builds OpenAPI documents from a derived engine
type Generator struct {
	engine *derive.Engine
	info   Info
}

// NewGenerator creates a new OpenAPI generator
func NewGenerator(engine *derive.Engine, info Info) *Generator {
	if info.Title == "" {
		info.Title = "restgen"
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	return &Generator{engine: engine, info: info}
}

// Document builds the document of the given routes
func (g *Generator) Document(routes []*router.Route) (map[string]interface{}, error) {
	paths := make(map[string]interface{})
	for _, route := range routes {
		op, err := g.operation(route)
		if err != nil {
			return nil, err
		}
		item, ok := paths[route.Pattern].(map[string]interface{})
		if !ok {
			item = make(map[string]interface{})
			paths[route.Pattern] = item
		}
		item[strings.ToLower(route.Method)] = op
	}

	info := map[string]interface{}{
		"title":   g.info.Title,
		"version": g.info.Version,
	}
	if g.info.Description != "" {
		info["description"] = g.info.Description
	}

	doc := map[string]interface{}{
		"openapi":    Version,
		"info":       info,
		"paths":      paths,
		"components": map[string]interface{}{"schemas": g.components()},
	}
	if servers := g.servers(); len(servers) > 0 {
		doc["servers"] = servers
	}
	return doc, nil
}

// Handler serves the document of routes, built on first request
func (g *Generator) Handler(routes []*router.Route) http.Handler {
	var (
		once sync.Once
		doc  map[string]interface{}
		err  error
	)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		once.Do(func() { doc, err = g.Document(routes) })
		if err != nil {
			response.Error(w, req, response.DefaultErrorMapper, err)
			return
		}
		response.OK(w, doc)
	})
}

// WriteFile writes the indented document to path, creating parent
// directories
func (g *Generator) WriteFile(routes []*router.Route, path string) error {
	if containsPathTraversal(path) {
		return fmt.Errorf("invalid output path: path traversal detected")
	}

	doc, err := g.Document(routes)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal OpenAPI document: %w", err)
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write OpenAPI document: %w", err)
	}
	return nil
}

func (g *Generator) servers() []map[string]interface{} {
	servers := make([]map[string]interface{}, 0, len(g.info.Servers))
	for _, s := range g.info.Servers {
		server := map[string]interface{}{"url": s.URL}
		if s.Description != "" {
			server["description"] = s.Description
		}
		servers = append(servers, server)
	}
	return servers
}

// components converts the derived definitions to component schemas
func (g *Generator) components() map[string]interface{} {
	defs := shape.Definitions(g.engine.Schemas()...)["definitions"].(map[string]interface{})

	schemas := make(map[string]interface{}, len(defs)+1)
	for name, def := range defs {
		schemas[name] = rewriteRefs(def)
	}
	schemas[ErrorSchema] = map[string]interface{}{
		"type":     "object",
		"required": []string{"error", "message"},
		"properties": map[string]interface{}{
			"error":   map[string]interface{}{"type": "string"},
			"message": map[string]interface{}{"type": "string"},
			"fields": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"field":   map[string]interface{}{"type": "string"},
						"message": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
	return schemas
}

func (g *Generator) operation(route *router.Route) (map[string]interface{}, error) {
	set, ok := g.engine.Set(route.Entity)
	if !ok {
		return nil, fmt.Errorf("route %s %s: unknown entity %s", route.Method, route.Pattern, route.Entity)
	}

	op := map[string]interface{}{"operationId": route.OperationID}
	if route.Summary != "" {
		op["summary"] = route.Summary
	}
	if route.Description != "" {
		op["description"] = route.Description
	}
	if len(route.Tags) > 0 {
		op["tags"] = route.Tags
	} else {
		op["tags"] = []string{route.Entity}
	}

	var params []map[string]interface{}
	if strings.Contains(route.Pattern, "{"+router.KeyParam+"}") {
		params = append(params, map[string]interface{}{
			"name":     router.KeyParam,
			"in":       "path",
			"required": true,
			"schema":   map[string]interface{}{"type": "string"},
		})
	}

	responses := map[string]interface{}{}
	success := strconv.Itoa(route.Status)

	switch route.Operation {
	case "create":
		op["requestBody"] = requestBody(set.Create)
		responses[success] = jsonResponse("Created", ref(set.Output.Name))
	case "read":
		responses[success] = jsonResponse("Successful Response", ref(set.Output.Name))
	case "patch":
		op["requestBody"] = requestBody(set.Patch)
		responses[success] = jsonResponse("Successful Response", ref(set.Output.Name))
	case "delete":
		responses[success] = jsonResponse("Number of deleted rows", map[string]interface{}{"type": "integer"})
	case "search":
		params = append(params, queryParameters(set.SearchQuery.Fields)...)
		responses[success] = jsonResponse("Successful Response", ref(set.SearchResponse.Name))
	case "relationship":
		rel, ok := set.Entity.Relationship(route.Relationship)
		if !ok {
			return nil, fmt.Errorf("route %s %s: unknown relationship %s", route.Method, route.Pattern, route.Relationship)
		}
		params = append(params, queryParameters(search.PageFields(crud.DefaultRelationshipLimit))...)
		responses[success] = jsonResponse("Successful Response", map[string]interface{}{
			"type":  "array",
			"items": ref(derive.OutputName(rel.Target)),
		})
	default:
		return nil, fmt.Errorf("route %s %s: unknown operation %s", route.Method, route.Pattern, route.Operation)
	}

	if len(params) > 0 {
		op["parameters"] = params
	}
	for _, status := range errorStatuses(route) {
		responses[strconv.Itoa(status)] = jsonResponse(http.StatusText(status), ref(ErrorSchema))
	}
	op["responses"] = responses
	return op, nil
}

// errorStatuses lists the error responses a route can produce
func errorStatuses(route *router.Route) []int {
	var statuses []int
	if len(route.Dependencies) > 0 {
		statuses = append(statuses, http.StatusUnauthorized)
	}
	switch route.Operation {
	case "create":
		statuses = append(statuses, http.StatusConflict, http.StatusUnprocessableEntity)
	case "patch":
		statuses = append(statuses, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity)
	case "read", "delete":
		statuses = append(statuses, http.StatusNotFound)
	case "search", "relationship":
		statuses = append(statuses, http.StatusUnprocessableEntity)
	}
	sort.Ints(statuses)
	return statuses
}

func queryParameters(fields []*shape.Field) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(fields))
	for _, f := range fields {
		s := shape.New("", "").Add(f).JSONSchema()["properties"].(map[string]interface{})[f.Name]
		param := map[string]interface{}{
			"name":     f.Name,
			"in":       "query",
			"required": f.Required,
			"schema":   rewriteRefs(s),
		}
		if f.Kind == shape.KindIdentifierList {
			param["explode"] = true
		}
		if f.Description != "" {
			param["description"] = f.Description
		}
		params = append(params, param)
	}
	return params
}

func requestBody(s *shape.Schema) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(s.Name)},
		},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": ComponentsPath + name}
}

// rewriteRefs points definition references at component schemas
func rewriteRefs(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			if s, ok := child.(string); ok && k == "$ref" {
				out[k] = ComponentsPath + strings.TrimPrefix(s, shape.DefinitionsPath)
				continue
			}
			out[k] = rewriteRefs(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, child := range t {
			out[i] = rewriteRefs(child)
		}
		return out
	default:
		return v
	}
}

func containsPathTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
