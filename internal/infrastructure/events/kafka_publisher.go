package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/service/compliance"
)

// EventTypeViolation tags notice records so consumers can route on headers
const EventTypeViolation = "tcpa.violation.detected"

// Producer is the subset of *kgo.Client the publisher needs
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes violation notices to a Kafka topic keyed by tenant,
// so one tenant's notices stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *zap.Logger
}

var _ compliance.Notifier = (*KafkaPublisher)(nil)

// NewKafkaClient creates a franz-go client for the configured brokers
func NewKafkaClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return client, nil
}

// NewKafkaPublisher creates a publisher writing to topic
func NewKafkaPublisher(producer Producer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// NotifyViolations produces one record per notice and waits for the ack
func (p *KafkaPublisher) NotifyViolations(ctx context.Context, notice compliance.ViolationNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshaling violation notice: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(notice.TenantID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventTypeViolation)},
			{Key: "outcome", Value: []byte(notice.Outcome)},
		},
		Timestamp: notice.OccurredAt,
	}

	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.logger.Error("failed to publish violation notice",
			zap.String("topic", p.topic),
			zap.String("tenant_id", notice.TenantID.String()),
			zap.Error(err))
		return fmt.Errorf("producing violation notice: %w", err)
	}

	p.logger.Debug("violation notice published",
		zap.String("topic", p.topic),
		zap.String("tenant_id", notice.TenantID.String()),
		zap.Int("violations", len(notice.Details)))
	return nil
}
