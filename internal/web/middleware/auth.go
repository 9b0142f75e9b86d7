package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/web/auth"
	webcontext "github.com/conduit-lang/restgen/internal/web/context"
	"github.com/conduit-lang/restgen/internal/web/response"
)

// Identity resolves the caller of every request and stores it on the
// context. Requests without credentials continue as the anonymous caller;
// requests with credentials that fail verification get 401.
func Identity(resolver auth.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := resolver.Resolve(r)
			if err != nil {
				webcontext.GetLogger(r.Context()).Debug("rejected credentials", zap.Error(err))
				response.NewHTTPError(http.StatusUnauthorized, "Invalid credentials").Render(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(webcontext.SetCaller(r.Context(), caller)))
		})
	}
}
