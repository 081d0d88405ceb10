package queries_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/actor"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	calendarPersistence "github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/persistence"
	constraintsPersistence "github.com/felixgeelhaar/meridian/internal/constraints/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/policy/application/queries"
	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	policyPersistence "github.com/felixgeelhaar/meridian/internal/policy/infrastructure/persistence"
	schedulingPersistence "github.com/felixgeelhaar/meridian/internal/scheduling/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/testdb"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

func setup(t *testing.T) (*calendarPersistence.SQLStore, userstate.Reader) {
	t.Helper()
	ctx := context.Background()
	conn := testdb.Open(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	store := calendarPersistence.NewSQLStore(conn)
	for _, acc := range []calendar.Account{{ID: "work", UserID: "u1"}, {ID: "home", UserID: "u1"}} {
		require.NoError(t, store.UpsertAccount(ctx, acc))
	}

	repo := policyPersistence.NewSQLRepository(conn, sharedDomain.NewManualClock(now))
	m, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	_, err = m.SetEdge("work", "home", "TITLE", now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, m))

	actors := userstate.NewStore(userstate.Repositories{
		Policy:      repo,
		Constraints: constraintsPersistence.NewSQLRepository(conn),
		Sessions:    schedulingPersistence.NewSQLRepository(conn),
	}, actor.Config{}, nil)
	t.Cleanup(actors.Close)
	return store, userstate.NewReader(actors)
}

func TestGetMatrix(t *testing.T) {
	store, reader := setup(t)
	view, err := queries.NewGetMatrixHandler(reader, store).Handle(context.Background(), queries.GetMatrixQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, domain.MatrixIDFor("u1"), view.PolicyID)
	assert.ElementsMatch(t, []string{"work", "home"}, view.AccountIDs)
	require.Len(t, view.Cells, 4)
	require.Len(t, view.Edges, 1)

	for _, c := range view.Cells {
		switch {
		case c.From == c.To:
			assert.False(t, c.Applicable)
			assert.Empty(t, c.Level)
			assert.Nil(t, c.PolicyID)
		case c.From == "work":
			assert.Equal(t, domain.LevelTitle, c.Level)
			assert.False(t, c.IsDefault)
			require.NotNil(t, c.PolicyID)
			assert.Equal(t, view.Edges[0].PolicyID, *c.PolicyID)
		default:
			assert.Equal(t, domain.LevelBusy, c.Level)
			assert.True(t, c.IsDefault)
		}
	}
}

func TestResolve(t *testing.T) {
	store, reader := setup(t)
	h := queries.NewResolveHandler(reader, store)
	ctx := context.Background()
	id := domain.MatrixIDFor("u1")

	r, err := h.Handle(ctx, queries.ResolveQuery{UserID: "u1", MatrixID: id, From: "work", To: "home"})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelTitle, r.Level)
	assert.False(t, r.IsDefault)

	r, err = h.Handle(ctx, queries.ResolveQuery{UserID: "u1", MatrixID: id, From: "home", To: "work"})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelBusy, r.Level)
	assert.True(t, r.IsDefault)

	r, err = h.Handle(ctx, queries.ResolveQuery{UserID: "u1", MatrixID: id, From: "home", To: "home"})
	require.NoError(t, err)
	assert.True(t, r.NotApplicable)

	_, err = h.Handle(ctx, queries.ResolveQuery{UserID: "u1", MatrixID: id, From: "home", To: "bob"})
	assert.ErrorIs(t, err, calendar.ErrAccountNotFound)

	_, err = h.Handle(ctx, queries.ResolveQuery{UserID: "u2", MatrixID: id, From: "work", To: "home"})
	assert.ErrorIs(t, err, domain.ErrMatrixNotFound)
}
