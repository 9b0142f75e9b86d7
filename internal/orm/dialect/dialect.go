// Package dialect knows the differences between the supported SQL backends:
// placeholder syntax, column types, fuzzy string matching and how to open a
// pooled connection.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/lib/pq"              // registers the "postgres" driver
	"github.com/mattn/go-sqlite3"
)

// Dialect identifies a storage backend
type Dialect int

const (
	Unknown Dialect = iota
	SQLite
	Postgres
)

// SQLiteDriver is the database/sql driver name for SQLite connections with
// the editdist3 function available and foreign keys enforced.
const SQLiteDriver = "sqlite3_restgen"

func init() {
	sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if _, err := conn.Exec("PRAGMA foreign_keys = ON", nil); err != nil {
				return fmt.Errorf("failed to enable foreign keys: %w", err)
			}
			return conn.RegisterFunc("editdist3", EditDistance, true)
		},
	})
}

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgresql"
	default:
		return "unknown"
	}
}

// FromDriver maps a database/sql driver name to its dialect
func FromDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite3", "sqlite", SQLiteDriver:
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return Unknown, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdentifier quotes a table or column name
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are configured
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Open opens and pings a pooled connection. SQLite connections always use
// the driver that provides editdist3; in-memory SQLite databases are limited
// to one connection so every query sees the same database.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*sql.DB, Dialect, error) {
	d, err := FromDriver(driver)
	if err != nil {
		return nil, Unknown, err
	}

	driverName := strings.ToLower(driver)
	switch driverName {
	case "sqlite", "sqlite3":
		driverName = SQLiteDriver
	case "postgresql":
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, Unknown, fmt.Errorf("failed to open database: %w", err)
	}

	if d == SQLite && strings.Contains(dsn, ":memory:") {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, Unknown, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, d, nil
}
