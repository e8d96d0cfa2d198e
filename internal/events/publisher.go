// Package events publishes step and journey status changes.
package events

import (
	"context"
	"fmt"

	"concierge/pkg/kafka"
	"concierge/pkg/logger"
	"concierge/pkg/model"
)

const (
	Source        = "allocation"
	SchemaVersion = "1"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaPublisher keys every fact by journey id so a consumer sees one
// journey's changes in order.
type KafkaPublisher struct {
	producer messagePublisher
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, change model.StatusChange) error {
	msg, err := kafka.NewMessage().
		WithKey(change.JourneyID).
		WithValue(change).
		WithEventType(change.Type).
		WithCorrelationID(change.JourneyID).
		WithSource(Source).
		WithSchemaVersion(SchemaVersion).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", change.Type, err)
	}
	return p.producer.Publish(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, change model.StatusChange) error {
	p.log.Info("Status changed",
		"type", change.Type,
		"entity_id", change.EntityID,
		"journey_id", change.JourneyID,
		"from", change.From,
		"to", change.To,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Decode reads a status change back from a consumed message.
func Decode(msg kafka.Message) (model.StatusChange, error) {
	var change model.StatusChange
	if err := msg.DecodeValue(&change); err != nil {
		return change, fmt.Errorf("failed to decode status change: %w", err)
	}
	if change.Type == "" {
		change.Type = msg.GetEventType()
	}
	return change, nil
}
