package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/availability/domain"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	constraints "github.com/felixgeelhaar/meridian/internal/constraints/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	accounts map[string]calendar.Account
	events   map[string][]calendar.Event
}

func (f *fakeCalendar) Account(_ context.Context, id string) (calendar.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return calendar.Account{}, calendar.ErrAccountNotFound
	}
	return acc, nil
}

func (f *fakeCalendar) AccountsForUser(_ context.Context, userID string) ([]calendar.Account, error) {
	var out []calendar.Account
	for _, id := range []string{"work", "home", "theirs"} {
		if acc, ok := f.accounts[id]; ok && acc.UserID == userID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (f *fakeCalendar) EventsBetween(_ context.Context, accountID string, _, _ time.Time) ([]calendar.Event, error) {
	return f.events[accountID], nil
}

type fakeConstraints map[string][]*constraints.Constraint

func (f fakeConstraints) ConstraintsFor(_ context.Context, userID string) ([]*constraints.Constraint, error) {
	return f[userID], nil
}

type fakeReservations map[string][]calendar.Event

func (f fakeReservations) ReservationsBetween(_ context.Context, accountID string, _, _ time.Time) ([]calendar.Event, error) {
	return f[accountID], nil
}

func fixture(t *testing.T) (*fakeCalendar, fakeConstraints) {
	t.Helper()
	cal := &fakeCalendar{
		accounts: map[string]calendar.Account{
			"work":   {ID: "work", UserID: "u1", Email: "me@work.test"},
			"home":   {ID: "home", UserID: "u1"},
			"theirs": {ID: "theirs", UserID: "u2"},
		},
		events: map[string][]calendar.Event{
			"work": {{ID: "w1", AccountID: "work", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)}},
			"home": {{ID: "h1", AccountID: "home", Start: monday.Add(12 * time.Hour), End: monday.Add(13 * time.Hour), Status: calendar.StatusTentative}},
		},
	}
	c, err := constraints.NewConstraint("u1", "no_meetings_after", json.RawMessage(`{"time":"17:00","timezone":"UTC"}`), nil, nil, monday)
	require.NoError(t, err)
	return cal, fakeConstraints{"u1": {c}}
}

func TestGetAvailability_UnionsOwnedAccounts(t *testing.T) {
	cal, cs := fixture(t)
	metrics := observability.NewInMemoryMetrics()
	compiler := NewCompiler(cal, cal, nil, cs, nil, metrics)
	h := NewGetAvailabilityHandler(compiler, cal)

	res, err := h.Handle(context.Background(), GetAvailabilityQuery{
		UserID:             "u1",
		Start:              monday.Add(8 * time.Hour),
		End:                monday.Add(18 * time.Hour),
		GranularityMinutes: 60,
		Mode:               "probabilistic",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"work", "home"}, res.AccountIDs)
	require.Len(t, res.Busy, 3)
	assert.Equal(t, []string{"work"}, res.Busy[0].AccountIDs)
	assert.True(t, res.Busy[1].Tentative)
	require.Len(t, res.Buckets, 10)
	assert.InDelta(t, 1.0, *res.Buckets[0].PFree, 1e-9)
	assert.InDelta(t, 0.0, *res.Buckets[1].PFree, 1e-9)
	assert.InDelta(t, 0.5, *res.Buckets[4].PFree, 1e-9)
	assert.InDelta(t, 0.0, *res.Buckets[9].PFree, 1e-9)
	assert.Len(t, metrics.GetTimings(observability.MetricOperationDuration, observability.T("operation", "availability.compile")), 2)
}

func TestGetAvailability_SingleAccountMustBeOwned(t *testing.T) {
	cal, cs := fixture(t)
	h := NewGetAvailabilityHandler(NewCompiler(cal, cal, nil, cs, nil, nil), cal)
	q := GetAvailabilityQuery{UserID: "u1", Start: monday, End: monday.Add(24 * time.Hour), GranularityMinutes: 30}

	q.AccountID = "theirs"
	_, err := h.Handle(context.Background(), q)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	q.AccountID = "home"
	res, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, res.AccountIDs)
	assert.False(t, *res.Buckets[24].Free)
	assert.True(t, *res.Buckets[0].Free)
}

func TestGetAvailability_ValidatesQuery(t *testing.T) {
	cal, cs := fixture(t)
	h := NewGetAvailabilityHandler(NewCompiler(cal, cal, nil, cs, nil, nil), cal)

	_, err := h.Handle(context.Background(), GetAvailabilityQuery{UserID: "u1", Start: monday, End: monday.Add(8 * 24 * time.Hour), GranularityMinutes: 30})
	assert.Equal(t, "end", apperr.FieldOf(err))

	_, err = h.Handle(context.Background(), GetAvailabilityQuery{UserID: "u1", Start: monday, End: monday.Add(time.Hour), GranularityMinutes: 30, Mode: "maybe"})
	assert.Equal(t, "mode", apperr.FieldOf(err))
}

func TestCompiler_MergesReservations(t *testing.T) {
	cal, cs := fixture(t)
	reservations := fakeReservations{"work": {
		{ID: "w1", AccountID: "work", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)},
		{ID: "meridian-s1", AccountID: "work", Start: monday.Add(14 * time.Hour), End: monday.Add(15 * time.Hour)},
	}}
	c := NewCompiler(cal, cal, reservations, cs, nil, nil)

	compiled, err := c.CompileAccount(context.Background(), "work", domainWindow(monday.Add(8*time.Hour), monday.Add(16*time.Hour)))
	require.NoError(t, err)
	blocks := compiled.Availability.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "meridian-s1", blocks[1].Event.ID)
}

func domainWindow(start, end time.Time) domain.Interval {
	return domain.Interval{Start: start, End: end}
}
