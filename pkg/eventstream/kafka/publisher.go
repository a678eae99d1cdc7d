// Package kafka publishes book events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/shelf/pkg/eventstream"
)

// DefaultTopic receives events when no topic is configured.
const DefaultTopic = "shelf.books"

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher writes one message per event, keyed by user id so a user's
// events stay ordered within a partition.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher creates a Kafka publisher. No connection is made until the
// first write.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Message encodes event as a Kafka message.
func Message(event *eventstream.BookSavedEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilBookEvent
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding book event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}

// PublishBookSaved writes event to the topic.
func (p *Publisher) PublishBookSaved(ctx context.Context, event *eventstream.BookSavedEvent) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing book event: %w", err)
	}
	return nil
}

// Topic is the topic events are written to.
func (p *Publisher) Topic() string {
	return p.writer.Topic
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
