package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/restgen/internal/web/context"
	"github.com/conduit-lang/restgen/internal/web/ratelimit"
	"github.com/conduit-lang/restgen/internal/web/response"
)

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// failures let the request through.
func RateLimit(limiter ratelimit.Limiter, keyFunc RateLimitKeyFunc) Middleware {
	if keyFunc == nil {
		keyFunc = CallerKeyFunc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				webcontext.GetLogger(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				retryAfter := int64(time.Until(info.ResetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				response.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded").Render(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CallerKeyFunc keys authenticated requests by caller and the rest by
// client address
func CallerKeyFunc(r *http.Request) string {
	if caller := webcontext.GetCaller(r.Context()); caller.Authenticated() {
		return "caller:" + caller.ID
	}
	return "ip:" + IPKeyFunc(r)
}

// IPKeyFunc extracts the IP address from the request
// Checks X-Forwarded-For header first, then falls back to RemoteAddr
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
