package response

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/orm/crud"
	webcontext "github.com/conduit-lang/restgen/internal/web/context"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  []crud.FieldError `json:"fields,omitempty"`
}

// HTTPError is a controller error translated for the client
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Fields     []crud.FieldError

	// Internal marks errors whose cause must be logged rather than shown
	Internal bool
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       errorCodeFromStatus(statusCode),
	}
}

// Render writes the error as a JSON response
func (e *HTTPError) Render(w http.ResponseWriter) {
	JSON(w, e.StatusCode, &ErrorResponse{
		Error:   e.Code,
		Message: e.Message,
		Fields:  e.Fields,
	})
}

// ErrorMapper translates controller errors into HTTP errors. Entities may
// install their own mapper; unmapped errors should fall back to
// DefaultErrorMapper.
type ErrorMapper func(err error) *HTTPError

// DefaultErrorMapper maps the controller error taxonomy onto status codes.
// Lookups that match no visible row and rows hidden by access control are
// both reported as not found.
func DefaultErrorMapper(err error) *HTTPError {
	var httpErr *HTTPError
	var verr *crud.ValidationError

	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case crud.IsNotFound(err):
		return NewHTTPError(http.StatusNotFound, "Resource not found")
	case errors.As(err, &verr):
		e := NewHTTPError(http.StatusUnprocessableEntity, "The request contains invalid data")
		e.Code = "validation_failed"
		e.Fields = verr.Errors
		return e
	case crud.IsUnauthorized(err):
		return NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	case crud.IsConstraintViolation(err):
		return NewHTTPError(http.StatusConflict, conflictMessage(err))
	default:
		e := NewHTTPError(http.StatusInternalServerError, "Internal server error")
		e.Internal = true
		return e
	}
}

func conflictMessage(err error) string {
	switch {
	case crud.IsUniqueViolation(err):
		return "A record with these values already exists"
	case crud.IsForeignKeyViolation(err):
		return "The record references or is referenced by another record"
	default:
		return "The record violates a storage constraint"
	}
}

// Error maps err with mapper and renders it. Internal errors are logged
// with the request logger and never shown to the client.
func Error(w http.ResponseWriter, r *http.Request, mapper ErrorMapper, err error) {
	if mapper == nil {
		mapper = DefaultErrorMapper
	}

	httpErr := mapper(err)
	if httpErr == nil {
		httpErr = DefaultErrorMapper(err)
	}

	if httpErr.Internal {
		webcontext.GetLogger(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	httpErr.Render(w)
}

// NotFound renders a 404 response
func NotFound(w http.ResponseWriter, r *http.Request) {
	NewHTTPError(http.StatusNotFound, "Resource not found").Render(w)
}

// MethodNotAllowed renders a 405 response
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	NewHTTPError(http.StatusMethodNotAllowed, "Method not allowed").Render(w)
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
