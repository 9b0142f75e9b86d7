package commands

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/cli/config"
	"github.com/conduit-lang/restgen/internal/web/auth"
	"github.com/conduit-lang/restgen/internal/web/events"
	"github.com/conduit-lang/restgen/internal/web/middleware"
	"github.com/conduit-lang/restgen/internal/web/openapi"
	"github.com/conduit-lang/restgen/internal/web/profiling"
	"github.com/conduit-lang/restgen/internal/web/ratelimit"
	"github.com/conduit-lang/restgen/internal/web/router"
	"github.com/conduit-lang/restgen/internal/web/server"
)

// EventsPath is where change events are streamed when enabled
const EventsPath = "/_events"

// OpenAPIPath serves the OpenAPI document of the generated endpoints
const OpenAPIPath = "/_openapi"

// NewServeCommand creates the serve command
func NewServeCommand(opts *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated API",
		Long: `Load the model, connect to the database, create missing tables when
database.auto_migrate is set, and serve the generated endpoints until
interrupted.

Examples:
  restgen serve
  restgen serve --config prod.yaml --port 9000
  RESTGEN_DATABASE_DSN=postgres://localhost/petstore restgen serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if port > 0 {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default server.port)")
	return cmd
}

// handler assembles the router and its optional event stream
func (a *app) handler(ctx context.Context, st *store) (http.Handler, []server.ShutdownHook, error) {
	var hooks []server.ShutdownHook

	var tokens *auth.TokenService
	if a.cfg.Auth.Mode == auth.ModeJWT {
		var err error
		if tokens, err = auth.NewTokenService(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL); err != nil {
			return nil, nil, err
		}
	}
	resolver, err := auth.NewResolver(a.cfg.Auth.Mode, tokens)
	if err != nil {
		return nil, nil, err
	}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(a.logger, a.cfg.Server.APIPrefix+"/_health"),
		middleware.Recovery(),
		middleware.Identity(resolver),
	)

	if a.cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := a.limiter(ctx)
		if err != nil {
			return nil, nil, err
		}
		if closeLimiter != nil {
			hooks = append(hooks, closeLimiter)
		}
		chain.Use(middleware.RateLimit(limiter, middleware.CallerKeyFunc))
	}

	r, err := router.New(st.controllers, router.Config{
		Prefix:       a.cfg.Server.APIPrefix,
		Dependencies: a.cfg.Server.Dependencies,
		Hooks:        auth.DefaultHooks(),
		Middleware:   chain.Middlewares(),
		Ping:         st.db.PingContext,
	})
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("routes registered", zap.Int("routes", len(r.Routes())))
	r.Mount(OpenAPIPath, openapi.NewGenerator(st.engine, apiInfo()).Handler(r.Routes()))

	if a.cfg.Events.Enabled {
		hub := events.NewHub(st.registry, a.logger.Named("events"))
		hub.Attach(st.controllers)
		go hub.Run(ctx)
		r.Mount(EventsPath, events.NewHandler(hub, originChecker(a.cfg.Server.CORSOrigins)))
		hooks = append(hooks, func(context.Context) error {
			hub.Close()
			return nil
		})
		a.logger.Info("change events enabled", zap.String("path", a.cfg.Server.APIPrefix+EventsPath))
	}

	return r, hooks, nil
}

// limiter prefers Redis when configured and reachable, falling back to an
// in-process limiter
func (a *app) limiter(ctx context.Context) (ratelimit.Limiter, server.ShutdownHook, error) {
	cfg := ratelimit.Config{Limit: a.cfg.RateLimit.Limit, Window: a.cfg.RateLimit.Window}

	if a.cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(a.cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn("redis unreachable, rate limiting in memory", zap.Error(err))
			client.Close()
		} else {
			limiter, err := ratelimit.NewRedisLimiter(client, cfg, "restgen:ratelimit:")
			if err != nil {
				client.Close()
				return nil, nil, err
			}
			a.logger.Info("rate limiting with redis", zap.Int("limit", cfg.Limit), zap.Duration("window", cfg.Window))
			return limiter, func(context.Context) error { return client.Close() }, nil
		}
	}

	limiter, err := ratelimit.NewMemoryLimiter(cfg)
	if err != nil {
		return nil, nil, err
	}
	return limiter, nil, nil
}

func (a *app) serve(ctx context.Context) error {
	st, err := a.open(ctx, a.cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer st.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, hooks, err := a.handler(ctx, st)
	if err != nil {
		return err
	}

	srv, err := server.New(serverConfig(a.cfg, h, a.logger))
	if err != nil {
		return err
	}

	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: a.cfg.Server.ShutdownTimeout,
		Logger:  a.logger,
	})
	for _, hook := range hooks {
		gs.RegisterHook(hook)
	}

	if a.cfg.Profiling.Enabled {
		hook, err := a.profiler()
		if err != nil {
			return err
		}
		gs.RegisterHook(hook)
	}

	a.out.Success("serving %s on http://%s%s", a.cfg.Model.Path, a.cfg.Server.Address(), a.cfg.Server.APIPrefix)
	return gs.Run(ctx)
}

// profiler starts the pprof listener and returns the hook stopping it
func (a *app) profiler() (server.ShutdownHook, error) {
	sc := server.DefaultConfig(profiling.Handler(profiling.DefaultConfig()))
	sc.Address = a.cfg.Profiling.Address
	sc.WriteTimeout = 0
	sc.Logger = a.logger.Named("profiling")

	srv, err := server.New(sc)
	if err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Start(); err != nil {
			a.logger.Error("profiling server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("profiling enabled", zap.String("address", srv.Addr()+profiling.Path))

	return srv.Shutdown, nil
}

func serverConfig(cfg *config.Config, h http.Handler, logger *zap.Logger) *server.Config {
	sc := server.DefaultConfig(h)
	sc.Address = cfg.Server.Address()
	sc.ReadTimeout = cfg.Server.ReadTimeout
	sc.WriteTimeout = cfg.Server.WriteTimeout
	sc.CORSOrigins = cfg.Server.CORSOrigins
	sc.Logger = logger
	return sc
}

// originChecker accepts the configured CORS origins for websocket upgrades.
// Without any, only same-origin upgrades are accepted.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
