package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	availability "github.com/felixgeelhaar/meridian/internal/availability/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/testdb"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newSession(t *testing.T, userID string, now time.Time) *domain.Session {
	t.Helper()
	s, err := domain.NewSession(domain.Proposal{
		UserID:             userID,
		OrganizerAccountID: "work",
		Title:              "Sync",
		DurationMinutes:    30,
		WindowStart:        monday.Add(9 * time.Hour),
		WindowEnd:          monday.Add(17 * time.Hour),
		ParticipantIDs:     []string{"work", "bob"},
		Soft:               domain.SoftConstraints{AvoidEarlyMorning: true, Timezone: "Europe/Berlin"},
	}, now)
	require.NoError(t, err)
	cands := domain.Generate(domain.GenerateInput{Duration: s.Duration(), Window: s.Window()})
	require.NoError(t, s.AttachCandidates(cands, now))
	return s
}

func TestSQLRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(testdb.Open(t))
	now := monday.Add(7 * time.Hour)

	s := newSession(t, "u1", now)
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.FindByID(ctx, "u1", s.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCandidatesReady, got.Status())
	assert.Equal(t, s.ParticipantIDs(), got.ParticipantIDs())
	assert.Equal(t, s.Soft(), got.Soft())
	assert.True(t, s.Window().Start.Equal(got.Window().Start))
	require.Len(t, got.Candidates(), len(s.Candidates()))
	assert.Equal(t, s.Candidates()[3].ID, got.Candidates()[3].ID)
	assert.True(t, s.Candidates()[3].Start.Equal(got.Candidates()[3].Start))
	assert.Nil(t, got.HeldCandidateID())

	_, err = repo.FindByID(ctx, "u2", s.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = repo.FindByID(ctx, "u1", uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Transitions are persisted in place.
	c := s.Candidates()[0]
	require.NoError(t, s.BeginHold(c.ID, 5*time.Minute, now))
	require.NoError(t, repo.Save(ctx, s))

	got, err = repo.FindByID(ctx, "u1", s.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHeld, got.Status())
	assert.Equal(t, c.ID, *got.HeldCandidateID())
	assert.True(t, now.Add(5*time.Minute).Equal(*got.HoldExpiresAt()))
	assert.Equal(t, s.Version(), got.Version())

	require.NoError(t, s.FinalizeCommit(c.ID, "meridian-x", now.Add(time.Minute)))
	require.NoError(t, repo.Save(ctx, s))
	got, err = repo.FindByID(ctx, "u1", s.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, got.Status())
	assert.Equal(t, "meridian-x", got.CommittedEventID())
	assert.Equal(t, c.ID, *got.CommittedCandidateID())
}

func TestSQLRepository_ListAndExpiredHolds(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(testdb.Open(t))
	now := monday.Add(7 * time.Hour)

	older := newSession(t, "u1", now)
	newer := newSession(t, "u1", now.Add(time.Minute))
	foreign := newSession(t, "u2", now)
	for _, s := range []*domain.Session{older, newer, foreign} {
		require.NoError(t, s.BeginHold(s.Candidates()[0].ID, 5*time.Minute, now))
		require.NoError(t, repo.Save(ctx, s))
	}

	list, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID(), list[0].ID())

	refs, err := repo.ExpiredHolds(ctx, now.Add(4*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, refs)

	refs, err = repo.ExpiredHolds(ctx, now.Add(5*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, refs, 3)

	refs, err = repo.ExpiredHolds(ctx, now.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestSQLLedger_ReserveDetectsOverlap(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	ledger := NewSQLLedger(conn, fixedClock{monday})

	slot := availability.Interval{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)}
	first, second := uuid.New(), uuid.New()

	require.NoError(t, ledger.Reserve(ctx, first, []string{"a", "b"}, slot))
	// Idempotent for the same session.
	require.NoError(t, ledger.Reserve(ctx, first, []string{"a", "b"}, slot))

	overlapping := availability.Interval{Start: slot.Start.Add(15 * time.Minute), End: slot.End.Add(15 * time.Minute)}
	err := ledger.Reserve(ctx, second, []string{"c", "b"}, overlapping)
	assert.ErrorIs(t, err, domain.ErrSlotTaken)

	// Nothing from the failed reservation was written.
	res, err := ledger.Between(ctx, "c", monday, monday.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, res)

	// Back-to-back is fine.
	adjacent := availability.Interval{Start: slot.End, End: slot.End.Add(30 * time.Minute)}
	require.NoError(t, ledger.Reserve(ctx, second, []string{"b"}, adjacent))

	require.NoError(t, ledger.SetEventID(ctx, first, "meridian-booked"))
	events, err := ledger.ReservationsBetween(ctx, "b", monday, monday.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "meridian-booked", events[0].ID)
	assert.Equal(t, "meridian-"+second.String(), events[1].ID)
	assert.True(t, events[1].IsBooking())

	require.NoError(t, ledger.Release(ctx, first))
	require.NoError(t, ledger.Reserve(ctx, uuid.New(), []string{"a"}, slot))
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
