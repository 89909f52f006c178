package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives every clip event; routing keys are event types
const DefaultExchange = "clips.events"

// Publisher publishes events to a durable topic exchange
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// Dial connects to url and declares the exchange
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	p, err := NewPublisher(channel, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares exchange on an existing channel
func NewPublisher(channel *amqp.Channel, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: channel, exchange: exchange}, nil
}

// Publish sends body with the event type as routing key
func (p *Publisher) Publish(ctx context.Context, key, eventType string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		eventType,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  events.ContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      amqp.Table{"owner_id": key},
			Body:         body,
		},
	)
}

func (p *Publisher) Name() string { return "amqp" }

// Close closes the channel and, when Dial opened it, the connection
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
