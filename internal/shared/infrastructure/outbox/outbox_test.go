package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

type edgeSet struct {
	domain.BaseEvent
	Level string `json:"detail_level"`
}

type fakePublisher struct {
	mu   sync.Mutex
	fail error
	sent []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, routingKey)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) *SQLRepository {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "outbox.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrations.Run(ctx, conn)
	require.NoError(t, err)
	return NewSQLRepository(conn)
}

func seed(t *testing.T, repo *SQLRepository, n int) {
	t.Helper()
	var events []domain.DomainEvent
	for i := 0; i < n; i++ {
		events = append(events, &edgeSet{
			BaseEvent: domain.NewBaseEvent(uuid.New(), "PolicyMatrix", "policy.edge.set", base),
			Level:     "TITLE",
		})
	}
	require.NoError(t, SaveEvents(context.Background(), repo, events))
}

func newProcessor(repo Repository, pub *fakePublisher, metrics observability.Metrics) *Processor {
	cfg := DefaultProcessorConfig()
	cfg.MaxRetries = 2
	p := NewProcessor(repo, pub, cfg, nil, metrics)
	p.now = func() time.Time { return base }
	return p
}

func TestProcessor_PublishesPending(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, 3)
	pub := &fakePublisher{}
	metrics := observability.NewInMemoryMetrics()
	p := newProcessor(repo, pub, metrics)

	require.NoError(t, p.ProcessOnce(context.Background()))

	assert.Equal(t, []string{"policy.edge.set", "policy.edge.set", "policy.edge.set"}, pub.sent)
	assert.Equal(t, uint64(3), p.Stats().Published)
	assert.Equal(t, int64(3), metrics.GetCounter(observability.MetricEventsPublished, observability.T("routing_key", "policy.edge.set")))

	pending, err := repo.Pending(context.Background(), base, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessor_RetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seed(t, repo, 1)
	pub := &fakePublisher{fail: errors.New("broker down")}
	p := newProcessor(repo, pub, nil)

	require.NoError(t, p.ProcessOnce(ctx))
	assert.Equal(t, uint64(1), p.Stats().Failed)

	pending, err := repo.Pending(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "backoff defers the retry")

	later := base.Add(time.Hour)
	p.now = func() time.Time { return later }
	pending, err = repo.Pending(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "broker down", pending[0].LastError)

	require.NoError(t, p.ProcessOnce(ctx))
	assert.Equal(t, uint64(1), p.Stats().Dead)

	pending, err = repo.Pending(ctx, later.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	seed(t, repo, 2)

	msgs, err := repo.Pending(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NoError(t, repo.MarkPublished(ctx, msgs[0].ID, base))

	n, err := repo.DeleteOld(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBackoff(t *testing.T) {
	p := NewProcessor(nil, nil, ProcessorConfig{RetryBackoffBase: time.Second, RetryBackoffMax: 5 * time.Second}, nil, nil)

	assert.Equal(t, time.Second, p.backoff(1))
	assert.Equal(t, 4*time.Second, p.backoff(3))
	assert.Equal(t, 5*time.Second, p.backoff(10))
}

func TestProcessor_StartStop(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, 1)
	pub := &fakePublisher{}
	cfg := DefaultProcessorConfig()
	cfg.PollInterval = 5 * time.Millisecond
	p := NewProcessor(repo, pub, cfg, nil, nil)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool { return p.Stats().Published == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestNewProcessor_DefaultsUnsetConfig(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, 2)
	pub := &fakePublisher{}
	p := NewProcessor(repo, pub, ProcessorConfig{}, nil, nil)

	assert.Equal(t, DefaultProcessorConfig(), p.config)

	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Len(t, pub.sent, 2)

	p.Start(context.Background())
	p.Stop()
}
