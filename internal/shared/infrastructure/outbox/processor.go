package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	RetentionDays    int
	CleanupInterval  time.Duration
}

// DefaultProcessorConfig returns the defaults used when config is absent.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     250 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		RetentionDays:    14,
		CleanupInterval:  24 * time.Hour,
	}
}

// withDefaults fills every unset field from DefaultProcessorConfig.
func (c ProcessorConfig) withDefaults() ProcessorConfig {
	d := DefaultProcessorConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = d.RetryBackoffBase
	}
	if c.RetryBackoffMax <= 0 {
		c.RetryBackoffMax = d.RetryBackoffMax
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

// Stats is a snapshot of relay activity.
type Stats struct {
	Published   uint64     `json:"published"`
	Failed      uint64     `json:"failed"`
	Dead        uint64     `json:"dead"`
	LastError   string     `json:"last_error,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	OldestLagMS int64      `json:"oldest_lag_ms"`
}

// Processor polls the outbox and publishes due messages.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a Processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, metrics observability.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	config = config.withDefaults()
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Start launches the polling loop. Calling Start twice is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
}

// Stop halts the loop and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()

	cleanupEvery := p.config.CleanupInterval
	if cleanupEvery <= 0 {
		cleanupEvery = 24 * time.Hour
	}
	cleanup := time.NewTicker(cleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		case <-cleanup.C:
			p.cleanup(ctx)
		}
	}
}

// ProcessOnce publishes one batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	now := p.now()
	msgs, err := p.repo.Pending(ctx, now, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return err
	}
	p.recordRun(now, msgs)

	for _, msg := range msgs {
		if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Body); err != nil {
			p.handleFailure(ctx, msg, err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, msg.ID, p.now()); err != nil {
			p.logger.Error("failed to mark message published", "id", msg.ID, "error", err)
			continue
		}
		p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("routing_key", msg.RoutingKey))
		p.statsMu.Lock()
		p.stats.Published++
		p.statsMu.Unlock()
	}
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, msg *Message, err error) {
	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"retry_count", msg.RetryCount,
		"error", err,
	)
	p.recordError(err)

	if p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries {
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error(), p.now()); markErr != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		p.statsMu.Lock()
		p.stats.Dead++
		p.statsMu.Unlock()
		return
	}

	next := p.now().Add(p.backoff(msg.RetryCount + 1))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		p.logger.Error("failed to record publish failure", "id", msg.ID, "error", markErr)
	}
	p.statsMu.Lock()
	p.stats.Failed++
	p.statsMu.Unlock()
}

// backoff doubles from the base per attempt, capped at the max.
func (p *Processor) backoff(attempt int) time.Duration {
	base, limit := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

func (p *Processor) cleanup(ctx context.Context) {
	if p.config.RetentionDays <= 0 {
		return
	}
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	n, err := p.repo.DeleteOld(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to delete old outbox messages", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("deleted old outbox messages", "count", n)
	}
}

// Stats returns a snapshot of relay counters.
func (p *Processor) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastError = err.Error()
}

func (p *Processor) recordRun(now time.Time, msgs []*Message) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastRunAt = &now
	p.stats.OldestLagMS = 0
	if len(msgs) > 0 {
		p.stats.OldestLagMS = now.Sub(msgs[0].CreatedAt).Milliseconds()
	}
}
