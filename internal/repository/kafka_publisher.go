package repository

import (
	"context"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/domain/repository"
	pkgkafka "StaffPulse/pkg/kafka"
)

// decisionEvent is the wire form of a decision on the decisions topic.
type decisionEvent struct {
	RecordID string                `json:"record_id"`
	Record   models.DecisionRecord `json:"record"`
}

// KafkaDecisionPublisher publishes decisions keyed by unit, so one unit's
// decisions stay ordered within a partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

var _ repository.DecisionPublisher = (*KafkaDecisionPublisher)(nil)

func (p *KafkaDecisionPublisher) PublishDecision(ctx context.Context, id string, rec models.DecisionRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.UnitID), decisionEvent{RecordID: id, Record: rec})
}

// Close leaves the shared producer open; its owner closes it.
func (p *KafkaDecisionPublisher) Close() error { return nil }
