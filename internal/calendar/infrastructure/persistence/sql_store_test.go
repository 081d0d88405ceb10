package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/testdb"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestSQLStore_Accounts(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(testdb.Open(t))

	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acc-work", UserID: "u1", Email: "me@work.test", CreatedAt: monday}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acc-home", UserID: "u1", CreatedAt: monday}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acc-other", UserID: "u2", CreatedAt: monday}))

	acc, err := store.Account(ctx, "acc-work")
	require.NoError(t, err)
	assert.Equal(t, "u1", acc.UserID)
	assert.Equal(t, "me@work.test", acc.Email)
	assert.True(t, monday.Equal(acc.CreatedAt))

	owned, err := store.AccountsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "acc-home", owned[0].ID)

	_, err = store.Account(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSQLStore_EventsBetween(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(testdb.Open(t))

	at := func(h int) time.Time { return monday.Add(time.Duration(h) * time.Hour) }
	for _, e := range []domain.Event{
		{ID: "before", AccountID: "a", Start: at(6), End: at(8)},
		{ID: "inside", AccountID: "a", Start: at(10), End: at(11), Attendees: []string{"X@Y.test"}},
		{ID: "tentative", AccountID: "a", Start: at(12), End: at(13), Status: domain.StatusTentative},
		{ID: "cancelled", AccountID: "a", Start: at(14), End: at(15), Status: domain.StatusCancelled},
		{ID: "other", AccountID: "b", Start: at(10), End: at(11)},
	} {
		e.UpdatedAt = monday
		require.NoError(t, store.UpsertEvent(ctx, e))
	}

	events, err := store.EventsBetween(ctx, "a", at(8), at(18))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "inside", events[0].ID)
	assert.Equal(t, []string{"x@y.test"}, events[0].Attendees)
	assert.Equal(t, domain.StatusTentative, events[1].Status)
}

func TestSQLStore_UpsertEventIgnoresStaleUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(testdb.Open(t))

	fresh := domain.Event{ID: "e", AccountID: "a", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour), UpdatedAt: monday.Add(time.Hour)}
	require.NoError(t, store.UpsertEvent(ctx, fresh))

	stale := fresh
	stale.Start = monday.Add(15 * time.Hour)
	stale.End = monday.Add(16 * time.Hour)
	stale.UpdatedAt = monday
	require.NoError(t, store.UpsertEvent(ctx, stale))

	events, err := store.EventsBetween(ctx, "a", monday, monday.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, fresh.Start.Equal(events[0].Start))
}

func TestLocalCreator(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(testdb.Open(t))
	creator := NewLocalCreator(store)

	id, err := creator.CreateEvent(ctx, domain.Booking{
		SessionID:  "s1",
		Title:      "Sync",
		Start:      monday.Add(10 * time.Hour),
		End:        monday.Add(11 * time.Hour),
		AccountIDs: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "meridian-s1", id)

	for _, acc := range []string{"a", "b"} {
		events, err := store.EventsBetween(ctx, acc, monday, monday.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Sync", events[0].Title)
	}

	require.NoError(t, creator.DeleteEvent(ctx, id))
	events, err := store.EventsBetween(ctx, "a", monday, monday.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}
