package openapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/derive"
	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	"github.com/conduit-lang/restgen/internal/web/auth"
	"github.com/conduit-lang/restgen/internal/web/router"
)

const petstore = `
entities:
  - name: Owner
    primary_key: uuid
    access: {kind: owner-only, user: true}
    fields:
      - {name: first_name, type: string}
    relationships:
      - {name: pets, target: Pet, cardinality: many, foreign_key: owner_id}
    read:
      routed_relationships: [pets]
  - name: Pet
    primary_key: autoincrement
    access: {kind: owner-or-public, owner_entity: Owner}
    fields:
      - {name: name, type: string}
      - {name: age, type: integer, nullable: true}
    resource:
      serialize: [owner]
      tags: [pets]
    create:
      dependencies: [permission:admin]
      summary: Add a pet
    search:
      search_gte: [age]
`

func build(t *testing.T) (*Generator, []*router.Route) {
	t.Helper()
	registry, err := schema.LoadModel([]byte(petstore))
	require.NoError(t, err)
	engine, err := derive.Build(registry, dialect.SQLite)
	require.NoError(t, err)
	routes, err := router.Plan(registry, router.Config{Prefix: "/api", Hooks: auth.DefaultHooks()})
	require.NoError(t, err)

	return NewGenerator(engine, Info{
		Title:   "Petstore",
		Version: "1.2.0",
		Servers: []Server{{URL: "http://localhost:8000"}},
	}), routes
}

// roundTrip returns the document as decoded JSON
func roundTrip(t *testing.T, doc map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), shape.DefinitionsPath, "references point at components")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func path(t *testing.T, doc map[string]interface{}, keys ...string) interface{} {
	t.Helper()
	var cur interface{} = doc
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		require.True(t, ok, "expected object at %q", k)
		cur, ok = m[k]
		require.True(t, ok, "missing key %q", k)
	}
	return cur
}

func TestDocument(t *testing.T) {
	g, routes := build(t)
	raw, err := g.Document(routes)
	require.NoError(t, err)
	doc := roundTrip(t, raw)

	assert.Equal(t, Version, doc["openapi"])
	assert.Equal(t, "Petstore", path(t, doc, "info", "title"))
	assert.Equal(t, "1.2.0", path(t, doc, "info", "version"))

	servers := doc["servers"].([]interface{})
	require.Len(t, servers, 1)

	schemas := path(t, doc, "components", "schemas").(map[string]interface{})
	for _, name := range []string{"PetOutput", "PetCreate", "PetPatch", "PetSearchQuery", "PetSearchResponse", "OwnerOutput", ErrorSchema} {
		assert.Contains(t, schemas, name)
	}
}

func TestCreateOperation(t *testing.T) {
	g, routes := build(t)
	raw, err := g.Document(routes)
	require.NoError(t, err)
	doc := roundTrip(t, raw)

	create := path(t, doc, "paths", "/api/pets", "post").(map[string]interface{})
	assert.Equal(t, "create_pet", create["operationId"])
	assert.Equal(t, "Add a pet", create["summary"])
	assert.Equal(t, []interface{}{"pets"}, create["tags"])
	assert.Equal(t, ComponentsPath+"PetCreate",
		path(t, create, "requestBody", "content", "application/json", "schema", "$ref"))
	assert.Equal(t, ComponentsPath+"PetOutput",
		path(t, create, "responses", "201", "content", "application/json", "schema", "$ref"))

	responses := create["responses"].(map[string]interface{})
	for _, status := range []string{"401", "409", "422"} {
		assert.Contains(t, responses, status)
	}
	assert.NotContains(t, responses, "404")
}

func TestSearchAndRelationshipParameters(t *testing.T) {
	g, routes := build(t)
	raw, err := g.Document(routes)
	require.NoError(t, err)
	doc := roundTrip(t, raw)

	search := path(t, doc, "paths", "/api/pets", "get").(map[string]interface{})
	names := paramNames(search)
	assert.Contains(t, names, "age_gte")
	assert.Contains(t, names, "limit")
	assert.Contains(t, names, "page")
	assert.Equal(t, ComponentsPath+"PetSearchResponse",
		path(t, search, "responses", "200", "content", "application/json", "schema", "$ref"))

	page := path(t, doc, "paths", "/api/owners/{key}/pets", "get").(map[string]interface{})
	assert.Equal(t, "get_pets_paginated", page["operationId"])
	assert.Equal(t, []string{"key", "limit", "page"}, paramNames(page))
	assert.Equal(t, ComponentsPath+"PetOutput",
		path(t, page, "responses", "200", "content", "application/json", "schema", "items", "$ref"))

	read := path(t, doc, "paths", "/api/owners/{key}", "get").(map[string]interface{})
	assert.Equal(t, []interface{}{"Owner"}, read["tags"], "untagged entities are grouped by name")
	assert.Contains(t, read["responses"], "404")
	assert.NotContains(t, read["responses"], "401")
}

func TestHandler(t *testing.T) {
	g, routes := build(t)
	h := g.Handler(routes)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_openapi", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, Version, doc["openapi"])
	}
}

func TestWriteFile(t *testing.T) {
	g, routes := build(t)
	out := filepath.Join(t.TempDir(), "docs", "openapi.json")
	require.NoError(t, g.WriteFile(routes, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
	assert.Contains(t, string(data), `"openapi": "3.1.0"`)

	err = g.WriteFile(routes, "../openapi.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path traversal")
}

func TestUnknownEntity(t *testing.T) {
	g, _ := build(t)
	_, err := g.Document([]*router.Route{{Method: http.MethodGet, Pattern: "/x", Entity: "Ghost", Operation: "read"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity Ghost")
}

func paramNames(op map[string]interface{}) []string {
	params, _ := op["parameters"].([]interface{})
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.(map[string]interface{})["name"].(string))
	}
	return names
}
