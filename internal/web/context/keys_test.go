package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/orm/access"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Equal(t, "abc", GetRequestID(SetRequestID(ctx, "abc")))
}

func TestCaller(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, access.Anonymous, GetCaller(ctx))

	caller := access.Caller{ID: "ann", Permissions: []string{"admin"}}
	assert.Equal(t, caller, GetCaller(SetCaller(ctx, caller)))
}

func TestLogger(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx))

	logger := zap.NewExample()
	assert.Same(t, logger, GetLogger(SetLogger(ctx, logger)))
}
