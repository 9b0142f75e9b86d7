// Package context carries per-request values between middleware and
// handlers.
package context

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	callerKey
	loggerKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetCaller extracts the caller from the context. Requests that passed no
// identity middleware run as the anonymous caller.
func GetCaller(ctx context.Context) access.Caller {
	if caller, ok := ctx.Value(callerKey).(access.Caller); ok {
		return caller
	}
	return access.Anonymous
}

// SetCaller adds the caller to the context
func SetCaller(ctx context.Context, caller access.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetLogger returns the request-scoped logger, or a no-op logger
func GetLogger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// SetLogger adds a request-scoped logger to the context
func SetLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
