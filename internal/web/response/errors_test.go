package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	webcontext "github.com/conduit-lang/restgen/internal/web/context"
)

func TestDefaultErrorMapper(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("owner 1: %w", crud.ErrNotFound), http.StatusNotFound, "Resource not found"},
		{"validation", shape.Invalid("name", "is required"), http.StatusUnprocessableEntity, "The request contains invalid data"},
		{"unauthorized", crud.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"unique", fmt.Errorf("insert: %w", crud.ErrUniqueViolation), http.StatusConflict, "A record with these values already exists"},
		{"http error", NewHTTPError(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := DefaultErrorMapper(tt.err)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.message, httpErr.Message)
		})
	}
}

func TestErrorRendersFields(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/pets", nil)

	Error(w, r, nil, shape.Invalid("name", "is required"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "name", body.Fields[0].Field)
}

func TestErrorLogsInternalErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/pets/1", nil)
	r = r.WithContext(webcontext.SetLogger(r.Context(), zap.New(core)))

	Error(w, r, nil, errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "connection reset", logs.All()[0].ContextMap()["error"])
}

func TestErrorWithCustomMapper(t *testing.T) {
	mapper := func(err error) *HTTPError {
		if crud.IsNotFound(err) {
			return NewHTTPError(http.StatusGone, "Gone for good")
		}
		return nil
	}

	w := httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodGet, "/", nil), mapper, crud.ErrNotFound)
	assert.Equal(t, http.StatusGone, w.Code)

	w = httptest.NewRecorder()
	Error(w, httptest.NewRequest(http.MethodGet, "/", nil), mapper, crud.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unmapped errors fall back to the default mapper")
}
