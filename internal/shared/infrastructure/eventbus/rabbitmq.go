package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange all meridian events flow through.
const ExchangeName = "meridian.events"

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// RabbitMQPublisher publishes envelopes to the topic exchange.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewRabbitMQPublisher dials url and declares the exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, ExchangeName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	logger.Info("rabbitmq publisher connected", "exchange", ExchangeName)
	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: ExchangeName, logger: logger}, nil
}

// Publish sends body as a persistent message.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug("message published", "routing_key", routingKey, "size", len(body))
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("error closing channel", "error", err)
	}
	return p.conn.Close()
}

// RabbitMQConsumerConfig configures a queue subscription.
type RabbitMQConsumerConfig struct {
	URL       string
	QueueName string
	Logger    *slog.Logger
}

// RabbitMQConsumer feeds a durable queue into a Registry.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	registry *Registry
	logger   *slog.Logger
}

// NewRabbitMQConsumer dials the broker and declares the queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *Registry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, ExchangeName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitMQConsumer{conn: conn, channel: ch, queue: cfg.QueueName, registry: registry, logger: cfg.Logger}, nil
}

// Run binds the queue to every registered routing key and consumes until
// ctx is cancelled. Handler failures are nacked for redelivery;
// undecodable bodies are acked and dropped.
func (c *RabbitMQConsumer) Run(ctx context.Context) error {
	for _, key := range c.registry.RoutingKeys() {
		if err := c.channel.QueueBind(c.queue, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.logger.Info("consuming events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.deliver(ctx, msg)
		}
	}
}

func (c *RabbitMQConsumer) deliver(ctx context.Context, msg amqp.Delivery) {
	env, err := Decode(msg.Body, msg.RoutingKey)
	if err != nil {
		c.logger.Error("dropping undecodable event", "routing_key", msg.RoutingKey, "error", err)
		_ = msg.Ack(false)
		return
	}
	if err := c.registry.Dispatch(ctx, env); err != nil {
		if nackErr := msg.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
}

// Close closes the channel and connection.
func (c *RabbitMQConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("error closing channel", "error", err)
	}
	return c.conn.Close()
}
