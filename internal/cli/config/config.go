// Package config loads restgen.yaml, overlaid by RESTGEN_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/restgen/internal/logging"
	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/web/auth"
)

// EnvPrefix prefixes every environment override, e.g. RESTGEN_DATABASE_DSN
const EnvPrefix = "RESTGEN"

// FileName is the config file looked up in the working directory
const FileName = "restgen"

// Config represents the restgen configuration
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Events    EventsConfig    `mapstructure:"events"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Log       logging.Config  `mapstructure:"log"`
}

// ModelConfig locates the entity model
type ModelConfig struct {
	Path     string `mapstructure:"path"`
	Fixtures string `mapstructure:"fixtures"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Dependencies    []string      `mapstructure:"dependencies"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// Pool returns the connection pool settings
func (d DatabaseConfig) Pool() dialect.PoolConfig {
	pool := dialect.DefaultPoolConfig()
	if d.MaxOpenConns > 0 {
		pool.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		pool.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = d.ConnMaxLifetime
	}
	return pool
}

// AuthConfig selects how callers are identified
type AuthConfig struct {
	Mode      string        `mapstructure:"mode"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig points at the Redis used for rate limiting
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// RateLimitConfig limits requests per caller
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// EventsConfig toggles the change event stream
type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ProfilingConfig serves pprof endpoints on a separate listener
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Load reads the config file at path, or restgen.yaml in the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.path", "model.yaml")
	v.SetDefault("model.fixtures", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.dependencies", []string{})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "restgen.db")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.mode", auth.ModeNone)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("redis.url", "")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("events.enabled", false)
	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.address", "localhost:6060")

	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "")
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if p := c.Server.APIPrefix; p != "" {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", p)
		}
		if strings.HasSuffix(p, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", p)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if _, err := dialect.FromDriver(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Auth.Mode {
	case auth.ModeNone, auth.ModeHeader:
	case auth.ModeJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when auth.mode is %q", auth.ModeJWT)
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be greater than 0")
		}
	default:
		return fmt.Errorf("auth.mode must be one of jwt, header or none, got: %s", c.Auth.Mode)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("ratelimit.limit must be greater than 0")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit.window must be greater than 0")
		}
	}

	if c.Profiling.Enabled && c.Profiling.Address == "" {
		return fmt.Errorf("profiling.address is required when profiling is enabled")
	}

	if _, err := logging.ParseLevel(c.Log.Level); c.Log.Level != "" && err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
