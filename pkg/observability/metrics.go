package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records application metrics.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Metric names.
const (
	MetricOperationDuration = "meridian.operation.duration"
	MetricOperationErrors   = "meridian.operation.errors"
	MetricSessionsProposed  = "meridian.sessions.proposed"
	MetricSessionsCommitted = "meridian.sessions.committed"
	MetricSessionsCancelled = "meridian.sessions.cancelled"
	MetricCommitConflicts   = "meridian.commit.conflicts"
	MetricHoldsExpired      = "meridian.holds.expired"
	MetricEventsPublished   = "meridian.events.published"
	MetricEventsConsumed    = "meridian.events.consumed"
	MetricBreakerChanges    = "meridian.breaker.changes"
	MetricBreakerRejected   = "meridian.breaker.rejected"
)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)         {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps metrics in process. It backs the /metrics debug
// endpoint and tests.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Timing(name string, d time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], d)
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetTimings returns all recorded durations for a timing.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.timings[formatKey(name, tags)]...)
}

// Snapshot returns a copy of all counters.
func (m *InMemoryMetrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, t.Key+"="+t.Value)
	}
	sort.Strings(parts)
	return name + ":" + strings.Join(parts, ",")
}

// TimeOperation runs fn, logging and recording its duration under the
// operation tag. Failures also bump the error counter.
func TimeOperation[R any](ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() (R, error)) (R, error) {
	start := time.Now()
	result, err := fn()
	d := time.Since(start)

	tag := T("operation", operation)
	if metrics != nil {
		metrics.Timing(MetricOperationDuration, d, tag)
		if err != nil {
			metrics.Counter(MetricOperationErrors, 1, tag)
		}
	}
	if logger != nil {
		logger.DebugContext(ctx, "operation completed",
			"operation", operation,
			"duration_ms", d.Milliseconds(),
			"failed", err != nil,
		)
	}
	return result, err
}
