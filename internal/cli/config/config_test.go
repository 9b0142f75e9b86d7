package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "none", cfg.Auth.Mode)
	assert.Equal(t, "model.yaml", cfg.Model.Path)
	assert.False(t, cfg.RateLimit.Enabled)

	pool := cfg.Database.Pool()
	assert.Equal(t, 25, pool.MaxOpenConns)
}

func TestLoadFile(t *testing.T) {
	path := write(t, `
model:
  path: examples/petstore/model.yaml
server:
  port: 9000
  api_prefix: /api
  cors_origins: [https://app.example.com]
  dependencies: [authenticated]
database:
  driver: pgx
  dsn: postgres://localhost/petstore
  max_open_conns: 50
auth:
  mode: jwt
  jwt_secret: s3cret
  token_ttl: 1h
ratelimit:
  enabled: true
  limit: 5
  window: 10s
log:
  mode: production
  level: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, []string{"authenticated"}, cfg.Server.Dependencies)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.Database.Pool().MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "production", cfg.Log.Mode)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	path := write(t, "database:\n  dsn: file.db\n")
	t.Setenv("RESTGEN_DATABASE_DSN", "override.db")
	t.Setenv("RESTGEN_SERVER_PORT", "7000")
	t.Setenv("RESTGEN_EVENTS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.db", cfg.Database.DSN)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Events.Enabled)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"prefix without slash", "server:\n  api_prefix: api\n", "must start with '/'"},
		{"prefix with trailing slash", "server:\n  api_prefix: /api/\n", "must not end with '/'"},
		{"unknown driver", "database:\n  driver: mysql\n", "unsupported database driver"},
		{"jwt without secret", "auth:\n  mode: jwt\n", "auth.jwt_secret is required"},
		{"unknown auth mode", "auth:\n  mode: basic\n", "auth.mode must be one of"},
		{"bad rate limit", "ratelimit:\n  enabled: true\n  limit: 0\n", "ratelimit.limit"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"profiling without address", "profiling:\n  enabled: true\n  address: \"\"\n", "profiling.address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
