package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// KafkaEmitterConfig contains configuration for the Kafka emitter
type KafkaEmitterConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaEmitter publishes change events to Kafka, keyed by event ID so one
// event's changes land on one partition in order.
type KafkaEmitter struct {
	client *kgo.Client
	topic  string
}

// NewKafkaEmitter creates a new Kafka emitter and verifies the connection
func NewKafkaEmitter(ctx context.Context, cfg *KafkaEmitterConfig) (*KafkaEmitter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka emitter config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "registration.changes"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "primepass-emitter"
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1 << 20),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &KafkaEmitter{client: client, topic: topic}, nil
}

var _ Emitter = (*KafkaEmitter)(nil)

// Emit publishes the event synchronously
func (e *KafkaEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	record := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "change_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
		Timestamp: time.Now(),
	}

	results := e.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Close flushes outstanding produce requests and closes the client
func (e *KafkaEmitter) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}
