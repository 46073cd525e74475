package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"nearby/core-go/migrations"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    text PRIMARY KEY,
  applied_at timestamptz NOT NULL DEFAULT now()
)`

// Migrate applies every embedded *.up.sql file that has not been recorded in
// schema_migrations, in lexical order, each in its own transaction.
// It returns the versions it applied.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("database not configured")
	}
	return applyMigrations(ctx, p.pool, migrations.FS)
}

func applyMigrations(ctx context.Context, conn txBeginner, fsys fs.FS) ([]string, error) {
	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := upMigrations(fsys)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}

		done, err := applyOne(ctx, conn, version, string(b))
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		if done {
			applied = append(applied, version)
		}
	}
	return applied, nil
}

func applyOne(ctx context.Context, conn txBeginner, version, sql string) (bool, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// upMigrations lists *.up.sql files in lexical order.
func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var ups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)
	return ups, nil
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}
