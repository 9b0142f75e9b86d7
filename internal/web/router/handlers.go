package router

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/restgen/internal/web/auth"
	webcontext "github.com/conduit-lang/restgen/internal/web/context"
	"github.com/conduit-lang/restgen/internal/web/response"
)

// handler builds the endpoint of one route. Dependencies run before the
// payload is decoded.
func (r *Router) handler(route *Route) http.HandlerFunc {
	mapper := r.mapper(route.Entity)
	serve := r.operation(route)

	return func(w http.ResponseWriter, req *http.Request) {
		caller := webcontext.GetCaller(req.Context())
		if err := auth.Check(req.Context(), caller, route.deps); err != nil {
			response.Error(w, req, mapper, err)
			return
		}

		result, err := serve(req)
		if err != nil {
			response.Error(w, req, mapper, err)
			return
		}
		response.JSON(w, route.Status, result)
	}
}

type operationFunc func(req *http.Request) (interface{}, error)

func (r *Router) operation(route *Route) operationFunc {
	c, entity := r.controllers, route.Entity

	switch route.Operation {
	case "create":
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Create(entity)
			if err != nil {
				return nil, err
			}
			body, err := r.body(req)
			if err != nil {
				return nil, err
			}
			input, err := ctrl.Input().Decode(body)
			if err != nil {
				return nil, err
			}
			return ctrl.Create(req.Context(), webcontext.GetCaller(req.Context()), input)
		}

	case "read":
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Read(entity)
			if err != nil {
				return nil, err
			}
			return ctrl.Read(req.Context(), webcontext.GetCaller(req.Context()), chi.URLParam(req, KeyParam))
		}

	case "patch":
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Patch(entity)
			if err != nil {
				return nil, err
			}
			body, err := r.body(req)
			if err != nil {
				return nil, err
			}
			input, err := ctrl.Input().Decode(body)
			if err != nil {
				return nil, err
			}
			return ctrl.Patch(req.Context(), webcontext.GetCaller(req.Context()), chi.URLParam(req, KeyParam), input)
		}

	case "delete":
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Delete(entity)
			if err != nil {
				return nil, err
			}
			return ctrl.Delete(req.Context(), webcontext.GetCaller(req.Context()), chi.URLParam(req, KeyParam))
		}

	case "search":
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Search(entity)
			if err != nil {
				return nil, err
			}
			values, err := ctrl.Query().DecodeQuery(req.URL.Query())
			if err != nil {
				return nil, err
			}
			return ctrl.Search(req.Context(), webcontext.GetCaller(req.Context()), values)
		}

	default:
		return func(req *http.Request) (interface{}, error) {
			ctrl, err := c.Relationship(entity, route.Relationship)
			if err != nil {
				return nil, err
			}
			values, err := ctrl.Query().DecodeQuery(req.URL.Query())
			if err != nil {
				return nil, err
			}
			return ctrl.Page(req.Context(), webcontext.GetCaller(req.Context()), chi.URLParam(req, KeyParam), values)
		}
	}
}

// body reads the request body up to the configured cap
func (r *Router) body(req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, req.Body, r.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, response.NewHTTPError(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return nil, response.NewHTTPError(http.StatusBadRequest, "Unreadable request body")
	}
	return body, nil
}
