package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/cli/config"
	"github.com/conduit-lang/restgen/internal/cli/ui"
	"github.com/conduit-lang/restgen/internal/logging"
	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/ddl"
	"github.com/conduit-lang/restgen/internal/orm/derive"
	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/transaction"
)

// app is what every command starts from: configuration, a logger and a
// printer bound to the command's output
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    *ui.Printer
}

func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		out:    ui.NewPrinter(cmd.OutOrStdout(), opts.noColor),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// model loads the entity model and derives its schemas for the configured
// dialect
func (a *app) model() (*schema.Registry, *derive.Engine, error) {
	d, err := dialect.FromDriver(a.cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	registry, err := schema.LoadModelFile(a.cfg.Model.Path)
	if err != nil {
		return nil, nil, err
	}
	engine, err := derive.Build(registry, d)
	if err != nil {
		return nil, nil, err
	}
	return registry, engine, nil
}

// store is an open database with the controllers of the model
type store struct {
	registry    *schema.Registry
	engine      *derive.Engine
	db          *sql.DB
	dialect     dialect.Dialect
	controllers *crud.Controllers
}

// open connects to the database and, when migrate is set, creates missing
// tables
func (a *app) open(ctx context.Context, migrate bool) (*store, error) {
	registry, engine, err := a.model()
	if err != nil {
		return nil, err
	}

	db, d, err := dialect.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN, a.cfg.Database.Pool())
	if err != nil {
		return nil, err
	}
	a.logger.Info("database connected", zap.String("dialect", d.String()))

	if migrate {
		if err := ddl.Bootstrap(ctx, db, d, registry, a.logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &store{
		registry:    registry,
		engine:      engine,
		db:          db,
		dialect:     d,
		controllers: crud.NewControllers(engine, transaction.NewManager(db)),
	}, nil
}

// entityNotFound prints an unknown entity error with suggestions
func (a *app) entityNotFound(registry *schema.Registry, name string) error {
	var names []string
	for _, e := range registry.All() {
		names = append(names, e.Name)
	}
	a.out.Error(ui.ErrorOptions{
		Context:     "entity not found",
		Problem:     name,
		Suggestions: ui.FindSimilar(name, names),
	})
	return fmt.Errorf("unknown entity %q", name)
}
