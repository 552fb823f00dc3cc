package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sahilchouksey/studyquiz-api/utils"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Routing keys published by the API
const (
	DocumentExtracted        = "document.extracted"
	DocumentExtractionFailed = "document.extraction_failed"
	QuizGenerated            = "quiz.generated"
	QuizGenerationFailed     = "quiz.generation_failed"
	AttemptSubmitted         = "attempt.submitted"
)

// DefaultExchange is the durable topic exchange events go to
const DefaultExchange = "studyquiz.events"

// Envelope is the JSON body of every published message
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Publisher sends domain events to interested consumers
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

// NewPublisher returns an AMQP publisher, or a no-op one when url is empty
func NewPublisher(url, exchange string) (Publisher, error) {
	if url == "" {
		return NoopPublisher{}, nil
	}
	return NewAMQPPublisher(url, exchange)
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }

// AMQPPublisher publishes JSON envelopes to a topic exchange
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
	log      *logrus.Entry
}

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      utils.WithComponent("Events"),
	}, nil
}

// Publish implements Publisher. amqp channels are not safe for concurrent
// publishing so calls are serialized.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Marshal(routingKey, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.log.WithField("routing_key", routingKey).Debug("Published event")
	return nil
}

// Close implements Publisher
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.log.WithError(err).Warn("Failed to close AMQP channel")
	}
	return p.conn.Close()
}

// Marshal builds the JSON envelope for an event
func Marshal(eventType string, payload interface{}, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Envelope{Type: eventType, OccurredAt: at, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return body, nil
}

// PublishAsync fires an event without blocking the caller. Failures are
// logged, never returned.
func PublishAsync(p Publisher, routingKey string, payload interface{}) {
	if p == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, routingKey, payload); err != nil {
			utils.WithComponent("Events").WithError(err).WithField("routing_key", routingKey).Warn("Event publish failed")
		}
	}()
}
