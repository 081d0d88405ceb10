// Package eventbus moves event envelopes between the outbox, the broker
// and in-process consumers.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/meridian/internal/shared/domain"
)

// Envelope is the wire form of an event. Domain events are wrapped into it
// by the outbox; the calendar sync feed publishes the same shape.
type Envelope struct {
	EventID       string               `json:"event_id"`
	AggregateID   string               `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// Wrap builds the envelope of a domain event.
func Wrap(event domain.DomainEvent) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:       event.EventID().String(),
		AggregateID:   event.AggregateID().String(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
		Metadata:      event.Metadata(),
	}, nil
}

// Decode parses an envelope body, taking the routing key from the
// transport when the body omits it.
func Decode(body []byte, routingKey string) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, err
	}
	if env.RoutingKey == "" {
		env.RoutingKey = routingKey
	}
	return env, nil
}

// Publisher sends encoded envelopes to a bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

// Consumer handles envelopes for a fixed set of routing keys.
type Consumer interface {
	RoutingKeys() []string
	Handle(ctx context.Context, env *Envelope) error
}
