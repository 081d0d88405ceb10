package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/app"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/pkg/config"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newDeps(t *testing.T) ToolDependencies {
	t.Helper()
	ctx := context.Background()
	c, err := app.NewContainer(ctx, &config.Config{
		AppEnv:           "test",
		SQLitePath:       filepath.Join(t.TempDir(), "meridian.db"),
		AutoMigrate:      true,
		HoldTTL:          5 * time.Minute,
		TierGateAllowAll: true,
	}, nil, app.WithClock(sharedDomain.NewManualClock(monday.Add(7*time.Hour))))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.Calendar.UpsertAccount(ctx, calendar.Account{ID: "work", UserID: "u1"}))
	require.NoError(t, c.Calendar.UpsertAccount(ctx, calendar.Account{ID: "home", UserID: "u1"}))
	require.NoError(t, c.Calendar.UpsertEvent(ctx, calendar.Event{
		ID: "review", AccountID: "home", Start: monday.Add(8 * time.Hour), End: monday.Add(9 * time.Hour),
		Status: calendar.StatusConfirmed,
	}))
	return ToolDependencies{Container: c, UserID: "u1"}
}

func TestRegisterTools_ListTools(t *testing.T) {
	srv, err := NewServer(newDeps(t), "test")
	require.NoError(t, err)

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make([]any, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool["name"])
	}
	for _, want := range []string{
		"availability.get", "policy.resolve", "scheduling.propose",
		"scheduling.candidates", "scheduling.commit", "scheduling.cancel",
	} {
		assert.Contains(t, names, want)
	}
}

func TestNewTools_RequiresUser(t *testing.T) {
	_, err := NewTools(ToolDependencies{Container: &app.Container{}})
	assert.Error(t, err)
}

func TestTools_ProposeCommitFlow(t *testing.T) {
	ctx := context.Background()
	tools, err := NewTools(newDeps(t))
	require.NoError(t, err)

	_, err = tools.Propose(ctx, proposeInput{DurationMinutes: 60, WindowStart: "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window_start")

	view, err := tools.Propose(ctx, proposeInput{
		DurationMinutes:       60,
		WindowStart:           monday.Add(8 * time.Hour).Format(time.RFC3339),
		WindowEnd:             monday.Add(11 * time.Hour).Format(time.RFC3339),
		ParticipantAccountIDs: []string{"work", "home"},
	})
	require.NoError(t, err)
	require.NotNil(t, view.BestCandidateID)
	assert.Len(t, view.Candidates, 2)

	cands, err := tools.Candidates(ctx, sessionInput{SessionID: view.SessionID.String()})
	require.NoError(t, err)
	assert.Equal(t, view.BestCandidateID, cands.BestCandidateID)

	committed, err := tools.Commit(ctx, commitInput{
		SessionID:   view.SessionID.String(),
		CandidateID: view.BestCandidateID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, committed.Status)

	_, err = tools.Cancel(ctx, sessionInput{SessionID: view.SessionID.String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestTools_ResolveAndAvailability(t *testing.T) {
	ctx := context.Background()
	tools, err := NewTools(newDeps(t))
	require.NoError(t, err)

	res, err := tools.Resolve(ctx, resolveInput{From: "home", To: "work"})
	require.NoError(t, err)
	assert.Equal(t, "BUSY", string(res.Level))
	assert.True(t, res.IsDefault)

	self, err := tools.Resolve(ctx, resolveInput{From: "home", To: "home"})
	require.NoError(t, err)
	assert.True(t, self.NotApplicable)

	_, err = tools.Resolve(ctx, resolveInput{From: "home", To: "elsewhere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	avail, err := tools.Availability(ctx, availabilityInput{
		Start:       monday.Add(8 * time.Hour).Format(time.RFC3339),
		End:         monday.Add(10 * time.Hour).Format(time.RFC3339),
		Mode:        "probabilistic",
		Granularity: 60,
	})
	require.NoError(t, err)
	require.Len(t, avail.Buckets, 2)
	require.Len(t, avail.Busy, 1)
}
