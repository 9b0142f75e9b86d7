package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/restgen/internal/web/context"
	"github.com/conduit-lang/restgen/internal/web/response"
)

// Recovery turns a panicking handler into a 500 response and logs the
// panic value with its stack
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				webcontext.GetLogger(r.Context()).Error("panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(v)),
					zap.Stack("stack"),
				)
				response.NewHTTPError(http.StatusInternalServerError, "Internal server error").Render(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
