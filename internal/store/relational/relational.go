// Package relational wraps the strong-consistency transactional store
// spec.md §3 describes: customers, agents and their config/state/capability
// tables, credentials, collection history, events, recommendations,
// approvals, optimizations, and the workflow tables. Schema is managed by
// numbered goose migrations under /migrations, grounded on the
// pressly/goose/v3 dependency already in the teacher's module graph.
package relational

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver goose needs
	"github.com/pressly/goose/v3"
)

// Store holds the connection pool every relational accessor (agents,
// credentials, collection history, workflow) is built on top of.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to dsn and returns a Store. Migrations are applied
// separately via Migrate so a read replica or test harness can open a
// Store without mutating schema.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: parse dsn: %w", err)
	}
	if maxOpenConns > 0 {
		cfg.MaxConns = int32(maxOpenConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("relational: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relational: ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.Pool.Close() }

// Migrate applies every pending goose migration embedded under
// migrationsFS (the caller passes the repository's migrations directory via
// go:embed, since goose's migration runner wants an fs.FS plus a *sql.DB
// rather than pgxpool.Pool directly).
func Migrate(dsn string, migrationsFS embed.FS, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("relational: open stdlib db for migration: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("relational: set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("relational: apply migrations: %w", err)
	}
	return nil
}
