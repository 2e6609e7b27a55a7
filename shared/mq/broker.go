// Package mq provides the RabbitMQ client used to publish generation
// lifecycle events. Uses a topic exchange so consumers subscribe to routing
// key patterns.
package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	Exchange     = "sitegen.events"
	ExchangeType = "topic"

	connectAttempts = 10
)

// Broker wraps an AMQP connection and a single channel.
type Broker struct {
	url  string
	conn *amqp.Connection

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch *amqp.Channel
}

// New connects to RabbitMQ and declares the exchange.
func New(ctx context.Context, amqpURL string) (*Broker, error) {
	b := &Broker{url: amqpURL}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", connectAttempts, err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	// Declare durable topic exchange
	return b.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends a message to the topic exchange with the given routing key.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a queue to the exchange using one or more routing key
// patterns, e.g. "generation.#" or "log.event". A named queue is durable and
// shared by every consumer of that name; an empty name declares a
// server-named exclusive queue that is deleted with the connection.
func (b *Broker) Subscribe(queueName string, patterns ...string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	private := queueName == ""
	q, err := b.ch.QueueDeclare(
		queueName,
		!private, // durable
		private,  // auto-delete
		private,  // exclusive
		false,    // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	for _, pattern := range patterns {
		if err := b.ch.QueueBind(q.Name, pattern, Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s to %s: %w", q.Name, pattern, err)
		}
	}

	if err := b.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return b.ch.Consume(
		q.Name,
		"",    // consumer tag, auto-generated
		false, // auto-ack; we ack manually after relaying
		false, false, false, nil,
	)
}

// Close shuts down channel and connection.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
