package eventbus

import (
	"context"
	"log/slog"
)

// InProcessBus delivers envelopes synchronously to local consumers. It
// replaces the broker in local mode.
type InProcessBus struct {
	registry *Registry
	logger   *slog.Logger
}

// NewInProcessBus creates a bus with an empty registry.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{registry: NewRegistry(logger), logger: logger}
}

// Register adds a consumer.
func (b *InProcessBus) Register(c Consumer) {
	b.registry.Register(c)
}

// Publish decodes body and dispatches it. Consumer failures are returned
// so the outbox retries the message.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	env, err := Decode(body, routingKey)
	if err != nil {
		b.logger.ErrorContext(ctx, "dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}
	return b.registry.Dispatch(ctx, env)
}

// Close is a no-op.
func (b *InProcessBus) Close() error { return nil }

// NoopPublisher discards everything.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }
