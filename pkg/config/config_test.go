package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HOLD_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 64, cfg.ActorMailboxSize)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://meridian@localhost/meridian")
	t.Setenv("HOLD_TTL", "90s")
	t.Setenv("ACTOR_MAILBOX_SIZE", "8")
	t.Setenv("TIER_GATE_ALLOW_ALL", "false")
	t.Setenv("TIER_GATE_ALLOWED_USERS", "alice, bob ,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "postgres://meridian@localhost/meridian", cfg.DatabaseURL)
	assert.Equal(t, 90*time.Second, cfg.HoldTTL)
	assert.Equal(t, 8, cfg.ActorMailboxSize)
	assert.False(t, cfg.TierGateAllowAll)
	assert.Equal(t, []string{"alice", "bob"}, cfg.TierGateAllowed)
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("HOLD_SWEEP_INTERVAL", "soon")
	t.Setenv("OUTBOX_BATCH_SIZE", "many")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.HoldSweepInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
}
