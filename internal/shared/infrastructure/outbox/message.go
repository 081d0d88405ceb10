// Package outbox stores domain events in the same transaction as the
// aggregate change and relays them to the event bus afterwards.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/eventbus"
)

// Message is a stored event awaiting publication.
type Message struct {
	ID               int64
	EventID          string
	AggregateType    string
	AggregateID      string
	RoutingKey       string
	Body             json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	RetryCount       int
	LastError        string
	NextRetryAt      *time.Time
	DeadLetteredAt   *time.Time
	DeadLetterReason string
}

// NewMessage wraps a domain event into an outbox message.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	env, err := eventbus.Wrap(event)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, err
	}
	return &Message{
		EventID:       env.EventID,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		RoutingKey:    env.RoutingKey,
		Body:          body,
		Metadata:      meta,
		CreatedAt:     env.OccurredAt,
	}, nil
}

// NewMessages wraps a batch of domain events.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, e := range events {
		m, err := NewMessage(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
