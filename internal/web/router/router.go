// Package router assembles the generated controllers into a chi router:
// one endpoint per enabled operation plus one per routed relationship, and
// introspection endpoints listing routes and schemas.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	"github.com/conduit-lang/restgen/internal/web/auth"
	"github.com/conduit-lang/restgen/internal/web/middleware"
	"github.com/conduit-lang/restgen/internal/web/response"
)

// DefaultMaxBodyBytes caps request bodies
const DefaultMaxBodyBytes = 1 << 20

// Config configures the assembled router
type Config struct {
	// Prefix is prepended to every path, e.g. "/api"
	Prefix string
	// Dependencies run before every generated endpoint
	Dependencies []string
	// Hooks resolves dependency names; nil uses auth.DefaultHooks
	Hooks *auth.Hooks
	// ErrorMappers replaces the error mapper of individual entities
	ErrorMappers map[string]response.ErrorMapper
	// Middleware wraps every route, in order
	Middleware []middleware.Middleware
	// MaxBodyBytes caps request bodies; zero uses DefaultMaxBodyBytes
	MaxBodyBytes int64
	// Ping reports storage health on the health endpoint
	Ping func(ctx context.Context) error
}

// Router serves the generated endpoints
type Router struct {
	mux         chi.Router
	controllers *crud.Controllers
	config      Config
	routes      []*Route
}

// New plans and registers every route of the controller set
func New(controllers *crud.Controllers, cfg Config) (*Router, error) {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	routes, err := Plan(controllers.Engine().Registry(), cfg)
	if err != nil {
		return nil, err
	}

	r := &Router{
		mux:         chi.NewRouter(),
		controllers: controllers,
		config:      cfg,
		routes:      routes,
	}
	for _, m := range cfg.Middleware {
		r.mux.Use(m)
	}

	for _, route := range routes {
		r.mux.Method(route.Method, route.Pattern, r.handler(route))
	}

	r.mux.Get(cfg.Prefix+"/_routes", r.listRoutes)
	r.mux.Get(cfg.Prefix+"/_schemas", r.listSchemas)
	r.mux.Get(cfg.Prefix+"/_health", r.health)
	r.mux.NotFound(response.NotFound)
	r.mux.MethodNotAllowed(response.MethodNotAllowed)

	return r, nil
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Routes returns the generated endpoints
func (r *Router) Routes() []*Route {
	return r.routes
}

// Mount attaches an extra handler, such as the change event stream, under
// the router's prefix and middleware
func (r *Router) Mount(pattern string, h http.Handler) {
	r.mux.Handle(r.config.Prefix+pattern, h)
}

func (r *Router) listRoutes(w http.ResponseWriter, req *http.Request) {
	response.OK(w, r.routes)
}

func (r *Router) listSchemas(w http.ResponseWriter, req *http.Request) {
	response.OK(w, shape.Definitions(r.controllers.Engine().Schemas()...))
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if r.config.Ping != nil {
		if err := r.config.Ping(req.Context()); err != nil {
			response.NewHTTPError(http.StatusServiceUnavailable, "Storage unavailable").Render(w)
			return
		}
	}
	response.OK(w, map[string]string{"status": "ok"})
}

// mapper returns the error mapper of an entity
func (r *Router) mapper(entity string) response.ErrorMapper {
	if m, ok := r.config.ErrorMappers[entity]; ok && m != nil {
		return m
	}
	return response.DefaultErrorMapper
}
