// Package migrations applies the embedded schema for the configured backend.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

const ledgerTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
)`

// Run applies every pending *.up.sql file for conn's driver in name order.
// Each file runs in its own transaction together with its ledger row.
// It returns the versions applied by this call.
func Run(ctx context.Context, conn database.Connection) ([]string, error) {
	if _, err := conn.Exec(ctx, ledgerTable); err != nil {
		return nil, fmt.Errorf("create migration ledger: %w", err)
	}

	dir := string(conn.Driver())
	names, err := upFiles(dir)
	if err != nil {
		return nil, err
	}

	runner := database.NewRunner(conn)
	uow := database.NewUnitOfWork(conn)
	var applied []string

	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")

		var exists int
		err := runner.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		body, err := fs.ReadFile(files, dir+"/"+name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}

		txCtx, err := uow.Begin(ctx)
		if err != nil {
			return applied, err
		}
		if err := apply(txCtx, runner, version, string(body)); err != nil {
			_ = uow.Rollback(txCtx)
			return applied, err
		}
		if err := uow.Commit(txCtx); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func apply(ctx context.Context, runner database.Runner, version, body string) error {
	for _, stmt := range Statements(body) {
		if _, err := runner.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: %w", version, err)
		}
	}
	_, err := runner.Exec(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, database.FormatTime(time.Now()))
	return err
}

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Statements splits a migration file on statement-terminating semicolons.
func Statements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
