// Package resilience guards calls into calendar collaborators with
// circuit breakers, so a failing provider sheds load instead of stalling
// every commit.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// BreakerConfig tunes a breaker.
type BreakerConfig struct {
	MaxFailures uint32
	MaxRequests uint32
	Interval    time.Duration
	OpenTimeout time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		MaxRequests: 1,
		Interval:    time.Minute,
		OpenTimeout: 30 * time.Second,
	}
}

func newBreaker[T any](name string, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Rejections by the domain are answers, not outages.
			return err == nil || apperr.IsDomain(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Counter(observability.MetricBreakerChanges, 1,
				observability.T("breaker", name), observability.T("to", to.String()))
		},
	})
}

func translate(name string, metrics observability.Metrics, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.Counter(observability.MetricBreakerRejected, 1, observability.T("breaker", name))
		return apperr.Internal(err, "%s unavailable", name)
	}
	return err
}

// EventCreator wraps a domain.EventCreator with a breaker.
type EventCreator struct {
	next    domain.EventCreator
	breaker *gobreaker.CircuitBreaker[string]
	metrics observability.Metrics
}

// NewEventCreator guards next.
func NewEventCreator(next domain.EventCreator, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *EventCreator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &EventCreator{
		next:    next,
		breaker: newBreaker[string]("event_creator", cfg, logger, metrics),
		metrics: metrics,
	}
}

// CreateEvent delegates through the breaker.
func (c *EventCreator) CreateEvent(ctx context.Context, b domain.Booking) (string, error) {
	id, err := c.breaker.Execute(func() (string, error) {
		return c.next.CreateEvent(ctx, b)
	})
	return id, translate("event_creator", c.metrics, err)
}

// DeleteEvent delegates through the breaker.
func (c *EventCreator) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := c.breaker.Execute(func() (string, error) {
		return "", c.next.DeleteEvent(ctx, eventID)
	})
	return translate("event_creator", c.metrics, err)
}

// State reports the breaker state, for readiness checks.
func (c *EventCreator) State() gobreaker.State { return c.breaker.State() }

// EventSource wraps a domain.EventSource with a breaker.
type EventSource struct {
	next    domain.EventSource
	breaker *gobreaker.CircuitBreaker[[]domain.Event]
	metrics observability.Metrics
}

// NewEventSource guards next.
func NewEventSource(next domain.EventSource, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *EventSource {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &EventSource{
		next:    next,
		breaker: newBreaker[[]domain.Event]("event_source", cfg, logger, metrics),
		metrics: metrics,
	}
}

// EventsBetween delegates through the breaker.
func (s *EventSource) EventsBetween(ctx context.Context, accountID string, start, end time.Time) ([]domain.Event, error) {
	events, err := s.breaker.Execute(func() ([]domain.Event, error) {
		return s.next.EventsBetween(ctx, accountID, start, end)
	})
	return events, translate("event_source", s.metrics, err)
}
