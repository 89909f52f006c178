package kafka

import (
	"context"
	"strings"

	"github.com/mateer-t1/music-moments-api/pkg/clips/events"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives every clip event
const DefaultTopic = "clips.events"

// Publisher writes events to one topic keyed by owner id, so one owner's
// events land on one partition in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a writer for a comma-separated broker list
func NewPublisher(brokers, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(SplitBrokers(brokers)...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one message with the event type in a header
func (p *Publisher) Publish(ctx context.Context, key, eventType string, body []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(eventType)},
			{Key: "content-type", Value: []byte(events.ContentType)},
		},
	})
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// SplitBrokers parses a comma-separated broker list, dropping blanks
func SplitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
