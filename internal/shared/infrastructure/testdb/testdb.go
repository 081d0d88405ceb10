// Package testdb opens migrated throwaway SQLite databases for repository
// tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/migrations"
)

// Open returns a migrated connection closed at test cleanup.
func Open(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "meridian.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn)
	require.NoError(t, err)
	return conn
}
