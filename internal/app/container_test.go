package app_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/app"
	calendar "github.com/felixgeelhaar/meridian/internal/calendar/domain"
	calsync "github.com/felixgeelhaar/meridian/internal/calendar/infrastructure/sync"
	schedulingCommands "github.com/felixgeelhaar/meridian/internal/scheduling/application/commands"
	schedulingDomain "github.com/felixgeelhaar/meridian/internal/scheduling/domain"
	"github.com/felixgeelhaar/meridian/internal/scheduling/infrastructure/holds"
	sharedDomain "github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/meridian/pkg/config"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func localConfig(t *testing.T) *config.Config {
	return &config.Config{
		AppEnv:           "test",
		SQLitePath:       filepath.Join(t.TempDir(), "meridian.db"),
		AutoMigrate:      true,
		HoldTTL:          5 * time.Minute,
		TierGateAllowAll: true,
	}
}

func TestNewContainer_LocalMode(t *testing.T) {
	ctx := context.Background()
	c, err := app.NewContainer(ctx, localConfig(t), nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, database.DriverSQLite, c.DB.Driver())
	assert.IsType(t, &holds.MemoryStore{}, c.Holds)
	assert.IsType(t, &eventbus.InProcessBus{}, c.EventPublisher)
	assert.Nil(t, c.SyncConsumer)

	health := c.Health.Check(ctx)
	assert.Equal(t, observability.HealthStatusHealthy, health.Status)
	assert.Contains(t, health.Checks, "database")
}

func TestNewContainer_RefusesUnmigratedStoreWithoutAutoMigrate(t *testing.T) {
	cfg := localConfig(t)
	cfg.AutoMigrate = false
	c, err := app.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Calendar.AccountsForUser(context.Background(), "u1")
	assert.Error(t, err)
}

func TestContainer_SyncFeedAndOutboxRelay(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewInMemoryMetrics()
	c, err := app.NewContainer(ctx, localConfig(t), nil,
		app.WithClock(sharedDomain.NewManualClock(monday.Add(7*time.Hour))),
		app.WithMetrics(metrics),
	)
	require.NoError(t, err)
	defer c.Close()

	publish := func(key string, payload any) {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body, err := json.Marshal(eventbus.Envelope{EventID: key, RoutingKey: key, OccurredAt: monday, Payload: raw})
		require.NoError(t, err)
		require.NoError(t, c.EventPublisher.Publish(ctx, key, body))
	}
	publish(calsync.RoutingKeyAccountLinked, calendar.Account{ID: "work", UserID: "u1", Email: "me@work.test"})
	publish(calsync.RoutingKeyEventUpserted, calendar.Event{
		ID: "standup", AccountID: "work", Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour),
		Status: calendar.StatusConfirmed,
	})

	view, err := c.ProposeHandler.Handle(ctx, schedulingCommands.ProposeCommand{
		UserID:                "u1",
		DurationMinutes:       60,
		WindowStart:           monday.Add(8 * time.Hour),
		WindowEnd:             monday.Add(11 * time.Hour),
		ParticipantAccountIDs: []string{"work"},
	})
	require.NoError(t, err)
	require.Len(t, view.Candidates, 2)

	require.NoError(t, c.OutboxProcessor.ProcessOnce(ctx))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsPublished,
		observability.T("routing_key", schedulingDomain.RoutingKeyProposed)))
}

func TestContainer_StartAndClose(t *testing.T) {
	cfg := localConfig(t)
	cfg.OutboxProcessorEnabled = true
	cfg.OutboxPollInterval = 10 * time.Millisecond
	cfg.HoldSweepInterval = 10 * time.Millisecond

	c, err := app.NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)

	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	c.Close()
	c.Close()
}
