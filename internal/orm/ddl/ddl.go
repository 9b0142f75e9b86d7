// Package ddl creates the tables of registered entities. Tables are created
// when absent and never altered.
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
)

// Generator generates CREATE TABLE statements for one dialect
type Generator struct {
	dialect dialect.Dialect
}

// NewGenerator creates a new DDL generator
func NewGenerator(d dialect.Dialect) *Generator {
	return &Generator{dialect: d}
}

// Statements returns every statement needed to store the registry: entity
// tables with foreign key targets first, then association tables
func (g *Generator) Statements(registry *schema.Registry) ([]string, error) {
	order, err := registry.DependencyOrder()
	if err != nil {
		return nil, fmt.Errorf("ordering tables: %w", err)
	}

	var stmts []string
	if g.dialect == dialect.Postgres && usesSimilarity(registry) {
		stmts = append(stmts, "CREATE EXTENSION IF NOT EXISTS pg_trgm;")
	}

	for _, name := range order {
		e, _ := registry.Get(name)
		stmt, err := g.CreateTable(registry, e)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		stmts = append(stmts, stmt)
	}

	seen := make(map[string]bool)
	for _, name := range order {
		e, _ := registry.Get(name)
		for _, rel := range e.Relationships {
			if !rel.IsManyToMany() || seen[rel.JoinTable] {
				continue
			}
			seen[rel.JoinTable] = true
			stmt, err := g.CreateAssociationTable(registry, e, rel)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", name, err)
			}
			stmts = append(stmts, stmt)
		}
	}

	return stmts, nil
}

// CreateTable generates the CREATE TABLE statement of an entity
func (g *Generator) CreateTable(registry *schema.Registry, e *schema.Entity) (string, error) {
	var defs []string
	for _, f := range e.Fields {
		def, err := g.columnDefinition(e, f)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		defs = append(defs, def)
	}

	for _, rel := range e.Relationships {
		if rel.Cardinality != schema.One {
			continue
		}
		target, ok := registry.Get(rel.Target)
		if !ok {
			return "", fmt.Errorf("relationship %s: unknown target %s", rel.Name, rel.Target)
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			dialect.QuoteIdentifier(rel.ForeignKey),
			dialect.QuoteIdentifier(target.Table),
			dialect.QuoteIdentifier(target.PrimaryKey().Name),
		))
	}

	return formatTable(e.Table, defs), nil
}

// CreateAssociationTable generates the table of a many-to-many relationship,
// keyed by both primary keys
func (g *Generator) CreateAssociationTable(registry *schema.Registry, owner *schema.Entity, rel *schema.Relationship) (string, error) {
	target, ok := registry.Get(rel.Target)
	if !ok {
		return "", fmt.Errorf("relationship %s: unknown target %s", rel.Name, rel.Target)
	}

	ownerType, err := g.mapType(owner.PrimaryKey().Type)
	if err != nil {
		return "", err
	}
	targetType, err := g.mapType(target.PrimaryKey().Type)
	if err != nil {
		return "", err
	}

	join := dialect.QuoteIdentifier(rel.JoinColumn)
	inverse := dialect.QuoteIdentifier(rel.InverseColumn)
	defs := []string{
		fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE CASCADE",
			join, ownerType, dialect.QuoteIdentifier(owner.Table), dialect.QuoteIdentifier(owner.PrimaryKey().Name)),
		fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE CASCADE",
			inverse, targetType, dialect.QuoteIdentifier(target.Table), dialect.QuoteIdentifier(target.PrimaryKey().Name)),
		fmt.Sprintf("PRIMARY KEY (%s, %s)", join, inverse),
	}
	return formatTable(rel.JoinTable, defs), nil
}

// columnDefinition generates a column definition for a field
func (g *Generator) columnDefinition(e *schema.Entity, f *schema.Field) (string, error) {
	name := dialect.QuoteIdentifier(f.Name)

	if f.Primary && e.KeyStrategy == schema.KeyAutoIncrement {
		if g.dialect == dialect.Postgres {
			return name + " BIGSERIAL PRIMARY KEY", nil
		}
		return name + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
	}

	columnType, err := g.mapType(f.Type)
	if err != nil {
		return "", err
	}
	parts := []string{name, columnType}

	if !f.Nullable || f.Primary {
		parts = append(parts, "NOT NULL")
	}
	if f.Primary {
		parts = append(parts, "PRIMARY KEY")
	} else if f.Unique {
		parts = append(parts, "UNIQUE")
	}

	return strings.Join(parts, " "), nil
}

// mapType maps a primitive type to a column type
func (g *Generator) mapType(t schema.PrimitiveType) (string, error) {
	switch t {
	case schema.TypeString:
		return "TEXT", nil
	case schema.TypeInteger:
		if g.dialect == dialect.Postgres {
			return "BIGINT", nil
		}
		return "INTEGER", nil
	case schema.TypeFloat:
		if g.dialect == dialect.Postgres {
			return "DOUBLE PRECISION", nil
		}
		return "REAL", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeDateTime:
		if g.dialect == dialect.Postgres {
			return "TIMESTAMPTZ", nil
		}
		return "DATETIME", nil
	case schema.TypeDate:
		return "DATE", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", t)
	}
}

func formatTable(table string, defs []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", dialect.QuoteIdentifier(table)))
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

func usesSimilarity(registry *schema.Registry) bool {
	for _, e := range registry.All() {
		if e.Search.Similarity.Enabled() {
			return true
		}
	}
	return false
}

// Bootstrap creates every missing table of the registry in one transaction
func Bootstrap(ctx context.Context, db *sql.DB, d dialect.Dialect, registry *schema.Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	stmts, err := NewGenerator(d).Statements(registry)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
		logger.Debug("table ensured", zap.String("statement", firstLine(stmt)))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logger.Info("tables ready", zap.Int("statements", len(stmts)), zap.String("dialect", d.String()))
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSuffix(stmt[:i], " (")
	}
	return stmt
}
