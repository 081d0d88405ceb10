// Package sync applies the calendar sync subsystem's feed to the local
// account and event copy.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/meridian/internal/calendar/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/eventbus"
)

// Routing keys published by the sync subsystem.
const (
	RoutingKeyEventUpserted = "calendar.event.upserted"
	RoutingKeyEventDeleted  = "calendar.event.deleted"
	RoutingKeyAccountLinked = "calendar.account.linked"
)

// Store is the write side the consumer needs.
type Store interface {
	UpsertAccount(ctx context.Context, acc domain.Account) error
	UpsertEvent(ctx context.Context, e domain.Event) error
	DeleteEvent(ctx context.Context, accountID, eventID string) error
}

// EventDeleted is the payload of calendar.event.deleted.
type EventDeleted struct {
	AccountID string `json:"account_id"`
	EventID   string `json:"event_id"`
}

// Consumer implements eventbus.Consumer.
type Consumer struct {
	store  Store
	logger *slog.Logger
}

// NewConsumer creates a sync consumer.
func NewConsumer(store Store, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{store: store, logger: logger}
}

// RoutingKeys lists the keys this consumer binds.
func (c *Consumer) RoutingKeys() []string {
	return []string{RoutingKeyAccountLinked, RoutingKeyEventDeleted, RoutingKeyEventUpserted}
}

// Handle applies one envelope.
func (c *Consumer) Handle(ctx context.Context, env *eventbus.Envelope) error {
	switch env.RoutingKey {
	case RoutingKeyAccountLinked:
		var acc domain.Account
		if err := json.Unmarshal(env.Payload, &acc); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		if acc.ID == "" || acc.UserID == "" {
			return fmt.Errorf("account payload missing id or user_id")
		}
		if acc.CreatedAt.IsZero() {
			acc.CreatedAt = env.OccurredAt
		}
		return c.store.UpsertAccount(ctx, acc)

	case RoutingKeyEventUpserted:
		var e domain.Event
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if e.ID == "" || e.AccountID == "" {
			return fmt.Errorf("event payload missing id or account_id")
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = env.OccurredAt
		}
		return c.store.UpsertEvent(ctx, e)

	case RoutingKeyEventDeleted:
		var d EventDeleted
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return fmt.Errorf("decode deletion: %w", err)
		}
		return c.store.DeleteEvent(ctx, d.AccountID, d.EventID)

	default:
		c.logger.DebugContext(ctx, "ignoring routing key", "routing_key", env.RoutingKey)
		return nil
	}
}
