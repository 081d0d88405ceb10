package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Registry routes envelopes to consumers by routing key.
type Registry struct {
	mu        sync.RWMutex
	consumers map[string][]Consumer
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{consumers: make(map[string][]Consumer), logger: logger}
}

// Register adds a consumer under each of its routing keys.
func (r *Registry) Register(c Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range c.RoutingKeys() {
		r.consumers[key] = append(r.consumers[key], c)
		r.logger.Debug("registered consumer", "routing_key", key)
	}
}

// RoutingKeys returns every key that has at least one consumer.
func (r *Registry) RoutingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.consumers))
	for k := range r.consumers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dispatch hands env to every consumer of its routing key. All consumers
// run even if one fails; their errors are joined.
func (r *Registry) Dispatch(ctx context.Context, env *Envelope) error {
	r.mu.RLock()
	consumers := append([]Consumer(nil), r.consumers[env.RoutingKey]...)
	r.mu.RUnlock()

	if len(consumers) == 0 {
		r.logger.Debug("no consumers for routing key", "routing_key", env.RoutingKey)
		return nil
	}

	var errs []error
	for _, c := range consumers {
		if err := c.Handle(ctx, env); err != nil {
			r.logger.ErrorContext(ctx, "consumer failed",
				"routing_key", env.RoutingKey,
				"event_id", env.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
