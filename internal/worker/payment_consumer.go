package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/internal/dto"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/pkg/logger"
)

// PaymentUpdateEvent is the payment collaborator's message on the payment
// updates topic
type PaymentUpdateEvent struct {
	RegistrationID string    `json:"registration_id"`
	PaymentStatus  string    `json:"payment_status"`
	PaymentID      string    `json:"payment_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PaymentConsumerConfig holds configuration for the payment consumer
type PaymentConsumerConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	ClientID         string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// PaymentConsumer consumes payment updates and applies them to registrations.
// It is the asynchronous twin of the payment webhook endpoint.
type PaymentConsumer struct {
	config  *PaymentConsumerConfig
	client  *kgo.Client
	service service.RegistrationService
	log     *logger.Logger
	stopCh  chan struct{}
}

// NewPaymentConsumer creates a new payment consumer
func NewPaymentConsumer(ctx context.Context, svc service.RegistrationService, cfg *PaymentConsumerConfig) (*PaymentConsumer, error) {
	if cfg.Topic == "" {
		cfg.Topic = "payment.updates"
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.RebalanceTimeout == 0 {
		cfg.RebalanceTimeout = 60 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ClientID(cfg.ClientID),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.RebalanceTimeout(cfg.RebalanceTimeout),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &PaymentConsumer{
		config:  cfg,
		client:  client,
		service: svc,
		log:     logger.Get(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins consuming payment updates. It blocks until the context is
// cancelled or Stop is called.
func (c *PaymentConsumer) Start(ctx context.Context) error {
	c.log.Info(fmt.Sprintf("Payment consumer started, listening to topic: %s", c.config.Topic))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				c.log.Error(fmt.Sprintf("Fetch error: topic=%s, partition=%d, err=%v",
					err.Topic, err.Partition, err.Err))
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			if err := c.processRecord(ctx, record); err != nil {
				c.log.Error(fmt.Sprintf("Failed to process payment update: %v", err))
			}
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.log.Error(fmt.Sprintf("Failed to commit offsets: %v", err))
		}
	}
}

// processRecord applies one payment update. Unknown registrations are skipped
// rather than retried: the topic also carries updates for other systems.
func (c *PaymentConsumer) processRecord(ctx context.Context, record *kgo.Record) error {
	var event PaymentUpdateEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return fmt.Errorf("failed to decode payment update: %w", err)
	}
	if event.RegistrationID == "" || event.PaymentStatus == "" {
		return fmt.Errorf("payment update missing registration_id or payment_status")
	}

	err := c.service.HandlePaymentUpdate(ctx, &dto.PaymentUpdateRequest{
		RegistrationID: event.RegistrationID,
		PaymentStatus:  event.PaymentStatus,
	})
	if err != nil {
		if domain.IsNotFoundError(err) {
			c.log.Warn(fmt.Sprintf("Payment update for unknown registration %s, skipping",
				event.RegistrationID))
			return nil
		}
		return err
	}

	c.log.Info(fmt.Sprintf("Applied payment update: registration=%s, status=%s",
		event.RegistrationID, event.PaymentStatus))
	return nil
}

// Stop stops the consumer and closes the Kafka client
func (c *PaymentConsumer) Stop() {
	close(c.stopCh)
	c.client.Close()
}
