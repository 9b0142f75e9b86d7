package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/web/auth"
)

// KeyParam is the path parameter holding an entity's lookup key
const KeyParam = "key"

// Route describes one generated endpoint
type Route struct {
	Method       string   `json:"method"`
	Pattern      string   `json:"pattern"`
	Entity       string   `json:"entity"`
	Operation    string   `json:"operation"`
	Relationship string   `json:"relationship,omitempty"`
	OperationID  string   `json:"operation_id"`
	Summary      string   `json:"summary,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Status       int      `json:"status"`

	deps []auth.Dependency
}

// Plan lists the endpoints of every registered entity, in dependency
// order, with their dependencies resolved against hooks. An unknown
// dependency name is a configuration error.
func Plan(registry *schema.Registry, cfg Config) ([]*Route, error) {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = auth.DefaultHooks()
	}

	names, err := registry.DependencyOrder()
	if err != nil {
		return nil, err
	}

	var routes []*Route
	for _, name := range names {
		e, _ := registry.Get(name)
		base := cfg.Prefix + basePath(e)
		item := base + "/{" + KeyParam + "}"

		for _, op := range schema.AllOperations {
			if !e.Enabled(op) {
				continue
			}
			opCfg := e.OperationConfig(op)
			route := &Route{
				Entity:      e.Name,
				Operation:   op.String(),
				OperationID: opCfg.OperationID,
				Summary:     opCfg.Summary,
				Description: opCfg.Description,
				Tags:        merge(e.Resource.Tags, opCfg.Tags),
				Status:      http.StatusOK,
			}
			if route.OperationID == "" {
				route.OperationID = op.String() + "_" + schema.ToSnakeCase(e.Name)
			}

			switch op {
			case schema.OpCreate:
				route.Method, route.Pattern, route.Status = http.MethodPost, base, http.StatusCreated
			case schema.OpRead:
				route.Method, route.Pattern = http.MethodGet, item
			case schema.OpPatch:
				route.Method, route.Pattern = http.MethodPatch, item
			case schema.OpDelete:
				route.Method, route.Pattern = http.MethodDelete, item
			case schema.OpSearch:
				route.Method, route.Pattern = http.MethodGet, base
			}

			route.Dependencies = merge(cfg.Dependencies, e.Resource.Dependencies, opCfg.Dependencies)
			routes = append(routes, route)

			if op == schema.OpRead {
				for _, rel := range e.Read.RoutedRelationships {
					routes = append(routes, &Route{
						Method:       http.MethodGet,
						Pattern:      item + "/" + rel,
						Entity:       e.Name,
						Operation:    "relationship",
						Relationship: rel,
						OperationID:  fmt.Sprintf("get_%s_paginated", rel),
						Summary:      "Paginated relationship endpoint for " + rel,
						Description:  "Paginated relationship endpoint for " + rel,
						Tags:         route.Tags,
						Dependencies: route.Dependencies,
						Status:       http.StatusOK,
					})
				}
			}
		}
	}

	for _, route := range routes {
		if route.deps, err = hooks.Resolve(route.Dependencies); err != nil {
			return nil, &schema.ConfigurationError{
				Entity:  route.Entity,
				Message: fmt.Sprintf("%s %s: %v", route.Method, route.Pattern, err),
			}
		}
	}
	return routes, nil
}

// basePath is the entity's configured prefix or "/<table>"
func basePath(e *schema.Entity) string {
	prefix := e.Resource.Prefix
	if prefix == "" {
		return "/" + e.Table
	}
	return "/" + strings.Trim(prefix, "/")
}

// merge concatenates lists, dropping duplicates
func merge(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
