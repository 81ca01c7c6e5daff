package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// DedupEvent represents the outcome of a dedup run for a project
type DedupEvent struct {
	EventType       string    `json:"event_type"` // completed
	SchemaVersion   string    `json:"schema_version"`
	TenantID        string    `json:"tenant_id"`
	ProjectID       string    `json:"project_id"`
	GroupsFormed    int       `json:"groups_formed"`
	SuppressedCount int       `json:"suppressed_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// OutputEvent represents an event about a synthesis output
type OutputEvent struct {
	EventType     string          `json:"event_type"` // created, deleted
	SchemaVersion string          `json:"schema_version"`
	TenantID      string          `json:"tenant_id"`
	ProjectID     string          `json:"project_id"`
	OutputID      string          `json:"output_id"`
	Mode          string          `json:"mode,omitempty"`
	SourceCount   int             `json:"source_count,omitempty"`
	Stats         json.RawMessage `json:"stats,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishDedupEvent publishes a dedup event to Kafka
func (p *Producer) PublishDedupEvent(ctx context.Context, event *DedupEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDedupEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ProjectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish dedup event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"project_id": event.ProjectID,
	}).Debug("Published dedup event")

	return nil
}

// PublishOutputEvent publishes an output event to Kafka
func (p *Producer) PublishOutputEvent(ctx context.Context, event *OutputEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishOutputEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.OutputID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish output event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"output_id":  event.OutputID,
	}).Debug("Published output event")

	return nil
}
