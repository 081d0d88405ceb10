package commands_test

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
	"github.com/felixgeelhaar/meridian/internal/policy/application/commands"
	"github.com/felixgeelhaar/meridian/internal/policy/domain"
	policyPersistence "github.com/felixgeelhaar/meridian/internal/policy/infrastructure/persistence"
	schedulingPersistence "github.com/felixgeelhaar/meridian/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/testdb"
	"github.com/felixgeelhaar/meridian/internal/userstate"
)

type fixture struct {
	handler *commands.SetEdgesHandler
	repo    *policyPersistence.SQLRepository
	outbox  *outbox.SQLRepository
	actors  *userstate.Store
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	conn := testdb.Open(t)
	clock := sharedDomain.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	store := calendarPersistence.NewSQLStore(conn)
	for _, acc := range []calendar.Account{
		{ID: "work", UserID: "u1"},
		{ID: "home", UserID: "u1"},
		{ID: "bob", UserID: "u2"},
	} {
		require.NoError(t, store.UpsertAccount(ctx, acc))
	}

	repo := policyPersistence.NewSQLRepository(conn, clock)
	actors := userstate.NewStore(userstate.Repositories{
		Policy:      repo,
		Constraints: constraintsPersistence.NewSQLRepository(conn),
		Sessions:    schedulingPersistence.NewSQLRepository(conn),
	}, actor.Config{}, nil)
	t.Cleanup(actors.Close)

	ob := outbox.NewSQLRepository(conn)
	return fixture{
		handler: commands.NewSetEdgesHandler(actors, store, repo, ob, database.NewUnitOfWork(conn), clock),
		repo:    repo,
		outbox:  ob,
		actors:  actors,
	}
}

func TestSetEdges_StoresAndReusesPolicyID(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	matrixID := domain.MatrixIDFor("u1")

	first, err := f.handler.Handle(ctx, commands.SetEdgesCommand{
		UserID:   "u1",
		MatrixID: matrixID,
		Edges:    []domain.EdgeInput{{From: "work", To: "home", Level: "TITLE"}},
	})
	require.NoError(t, err)
	require.Len(t, first.Edges, 1)
	assert.Equal(t, matrixID, first.PolicyID)

	second, err := f.handler.Handle(ctx, commands.SetEdgesCommand{
		UserID:   "u1",
		MatrixID: matrixID,
		Edges:    []domain.EdgeInput{{From: "work", To: "home", Level: "FULL"}},
	})
	require.NoError(t, err)
	assert.Equal(t, first.Edges[0].PolicyID, second.Edges[0].PolicyID)

	stored, err := f.repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Resolution{Level: domain.LevelFull}, stored.Resolve("work", "home"))

	pending, err := f.outbox.Pending(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.RoutingKeyEdgeSet, pending[0].RoutingKey)
}

func TestSetEdges_RejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	matrixID := domain.MatrixIDFor("u1")

	tests := []struct {
		name  string
		edges []domain.EdgeInput
		kind  apperr.Kind
	}{
		{"bad level", []domain.EdgeInput{{From: "work", To: "home", Level: "TITLE"}, {From: "home", To: "work", Level: "SECRET"}}, apperr.KindValidation},
		{"self edge", []domain.EdgeInput{{From: "work", To: "home", Level: "TITLE"}, {From: "home", To: "home", Level: "FULL"}}, apperr.KindConflict},
		{"foreign account", []domain.EdgeInput{{From: "work", To: "home", Level: "TITLE"}, {From: "work", To: "bob", Level: "FULL"}}, apperr.KindNotFound},
		{"missing account", []domain.EdgeInput{{From: "", To: "home", Level: "FULL"}}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.Handle(ctx, commands.SetEdgesCommand{UserID: "u1", MatrixID: matrixID, Edges: tt.edges})
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			stored, err := f.repo.FindByUser(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, stored.Edges())
		})
	}

	// The cached matrix was not touched either.
	err := f.actors.Do(ctx, "u1", func(_ context.Context, st *userstate.State) error {
		assert.Empty(t, st.Matrix.Edges())
		return nil
	})
	require.NoError(t, err)
}

func TestSetEdges_ForeignMatrixIsNotFound(t *testing.T) {
	f := setup(t)
	_, err := f.handler.Handle(context.Background(), commands.SetEdgesCommand{
		UserID:   "u1",
		MatrixID: domain.MatrixIDFor("u2"),
		Edges:    []domain.EdgeInput{{From: "work", To: "home", Level: "TITLE"}},
	})
	assert.ErrorIs(t, err, domain.ErrMatrixNotFound)
}
