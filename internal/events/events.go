// Package events publishes domain events to kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Type identifies a domain event
type Type string

const (
	TypeMediaProbed           Type = "media.probed"
	TypeMediaProcessingFailed Type = "media.processing_failed"
	TypeAnnotationReviewed    Type = "annotation.reviewed"
)

// Event is one domain event. Key is the id of the entity it concerns and
// selects the partition, so events of one entity stay ordered.
type Event struct {
	Type       Type                   `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// New builds an event keyed by an entity id
func New(eventType Type, id uint, data map[string]interface{}) Event {
	return Event{
		Type:       eventType,
		Key:        fmt.Sprintf("%d", id),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher sends domain events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON values to one topic
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers list is empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
		logger: logger.Named("events"),
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	p.logger.Debug("Published event", zap.String("type", string(event.Type)), zap.String("key", event.Key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// PublishBestEffort publishes an event and logs instead of returning a failure
func PublishBestEffort(ctx context.Context, publisher Publisher, logger *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("key", event.Key),
			zap.Error(err))
	}
}
