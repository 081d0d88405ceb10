package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	sharedApplication "github.com/felixgeelhaar/meridian/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/testdb"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestSQLRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(testdb.Open(t), sharedDomain.NewManualClock(now))

	m, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatrixIDFor("u1"), m.ID())
	assert.Empty(t, m.Edges())

	first, err := m.SetEdge("A", "B", "TITLE", now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, m))
	m.MarkClean()

	_, err = m.SetEdge("A", "B", "FULL", now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, m))

	loaded, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	edge, ok := loaded.Edge("A", "B")
	require.True(t, ok)
	assert.Equal(t, first.PolicyID, edge.PolicyID)
	assert.Equal(t, domain.LevelFull, edge.Level)
	assert.Equal(t, m.Version(), loaded.Version())
	assert.True(t, loaded.Resolve("B", "A").IsDefault)
}

func TestSQLRepository_SaveJoinsUnitOfWork(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	repo := NewSQLRepository(conn, sharedDomain.NewManualClock(now))
	uow := database.NewUnitOfWork(conn)

	m, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	_, err = m.SetEdge("A", "B", "TITLE", now)
	require.NoError(t, err)

	err = sharedApplication.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		if err := repo.Save(txCtx, m); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	loaded, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Edges())
}
