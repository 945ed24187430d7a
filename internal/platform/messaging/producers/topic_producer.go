package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/marketplace-ledger/settlement-engine/internal/config"
)

// TopicProducer publishes JSON messages to one Kafka topic. The settlement
// engine uses two instances: one for report-generation jobs enqueued by the
// daily-close CLI, one for settlement lifecycle events.
type TopicProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewReportJobProducer creates the producer for report-generation jobs and
// ensures the topic exists.
func NewReportJobProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(ctx, logger, cfg, cfg.ReportJobTopic)
}

// NewSettlementEventProducer creates the producer for settlement lifecycle
// events and ensures the topic exists.
func NewSettlementEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(ctx, logger, cfg, cfg.SettlementEventTopic)
}

func newTopicProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) (*TopicProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for topic %s: %w", topic, err)
	}
	defer conn.Close()

	err = ensureTopic(conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.MaxWait,
	}

	return &TopicProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

// Publish JSON-encodes value and writes it to the topic under key
func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for topic %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka message producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
