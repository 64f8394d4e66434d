package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/internal/dto"
	"github.com/alexxgorcea9/primepass/internal/emitter"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/pkg/logger"
)

type workerFixture struct {
	events      *repository.MemoryEventRepository
	regs        *repository.MemoryRegistrationRepository
	ledger      *ledger.MemoryLedger
	coordinator *allocation.Coordinator
	svc         service.RegistrationService
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	events := repository.NewMemoryEventRepository()
	regs := repository.NewMemoryRegistrationRepository()
	l := ledger.NewMemoryLedger()
	coordinator := allocation.NewCoordinator(l, events, regs, emitter.NewNoOpEmitter(), nil)
	return &workerFixture{
		events:      events,
		regs:        regs,
		ledger:      l,
		coordinator: coordinator,
		svc:         service.NewRegistrationService(events, regs, l, coordinator),
	}
}

func (f *workerFixture) seedEventAndTier(t *testing.T, capacity int64) (string, string) {
	t.Helper()
	event, err := f.svc.CreateEvent(context.Background(), &dto.CreateEventRequest{
		Name:          "Launch Night",
		Capacity:      1000,
		AllowMultiple: true,
		StartTime:     time.Now().Add(24 * time.Hour),
		EndTime:       time.Now().Add(30 * time.Hour),
	})
	require.NoError(t, err)
	tier, err := f.svc.CreateTier(context.Background(), event.ID, &dto.CreateTierRequest{
		Name:     "General",
		Capacity: capacity,
	})
	require.NoError(t, err)
	return event.ID, tier.ID
}

func (f *workerFixture) register(t *testing.T, userID, eventID, tierID string) *dto.RegistrationResponse {
	t.Helper()
	reg, err := f.svc.CreateRegistration(context.Background(), userID, &dto.CreateRegistrationRequest{
		EventID: eventID,
		TierID:  tierID,
	})
	require.NoError(t, err)
	return reg
}

func TestPromotionSweeper_SweepPromotesAfterCapacityFrees(t *testing.T) {
	f := newWorkerFixture(t)
	eventID, tierID := f.seedEventAndTier(t, 1)

	f.register(t, "user-1", eventID, tierID)
	waitlisted := f.register(t, "user-2", eventID, tierID)
	require.Equal(t, string(domain.RegistrationStatusWaitlisted), waitlisted.Status)

	// Free the slot behind the coordinator's back, as an out of band
	// capacity change would
	_, err := f.ledger.AddCapacity(context.Background(), ledger.TierKey(tierID), 1)
	require.NoError(t, err)

	sweeper := NewPromotionSweeper(f.coordinator, f.regs, nil)
	promoted := sweeper.Sweep(context.Background())

	assert.Equal(t, 1, promoted)
	got, err := f.regs.GetByID(context.Background(), waitlisted.ID)
	require.NoError(t, err)
	assert.True(t, got.IsConfirmed())
	assert.NotEmpty(t, got.QRCode)
}

func TestPromotionSweeper_SweepNoWaitlists(t *testing.T) {
	f := newWorkerFixture(t)
	eventID, tierID := f.seedEventAndTier(t, 5)
	f.register(t, "user-1", eventID, tierID)

	sweeper := NewPromotionSweeper(f.coordinator, f.regs, nil)

	assert.Equal(t, 0, sweeper.Sweep(context.Background()))
}

func TestPromotionSweeper_StartStop(t *testing.T) {
	f := newWorkerFixture(t)
	sweeper := NewPromotionSweeper(f.coordinator, f.regs, &PromotionSweeperConfig{
		SweepInterval: 10 * time.Millisecond,
	})

	require.NoError(t, sweeper.Start(context.Background()))
	assert.Error(t, sweeper.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()

	stats := sweeper.GetStats()
	assert.False(t, stats.IsRunning)
	assert.False(t, stats.LastSweepTime.IsZero())
}

func newTestPaymentConsumer(svc service.RegistrationService) *PaymentConsumer {
	return &PaymentConsumer{
		config:  &PaymentConsumerConfig{Topic: "payment.updates"},
		service: svc,
		log:     logger.Get(),
		stopCh:  make(chan struct{}),
	}
}

func TestPaymentConsumer_ProcessRecordCancelsOnFailure(t *testing.T) {
	f := newWorkerFixture(t)
	eventID, tierID := f.seedEventAndTier(t, 1)
	reg := f.register(t, "user-1", eventID, tierID)

	payload, err := json.Marshal(PaymentUpdateEvent{
		RegistrationID: reg.ID,
		PaymentStatus:  string(domain.PaymentStatusFailed),
		Timestamp:      time.Now(),
	})
	require.NoError(t, err)

	consumer := newTestPaymentConsumer(f.svc)
	err = consumer.processRecord(context.Background(), &kgo.Record{Value: payload})
	require.NoError(t, err)

	got, err := f.regs.GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled())
	assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)
}

func TestPaymentConsumer_ProcessRecordSkipsUnknownRegistration(t *testing.T) {
	f := newWorkerFixture(t)

	payload, err := json.Marshal(PaymentUpdateEvent{
		RegistrationID: "not-here",
		PaymentStatus:  string(domain.PaymentStatusCompleted),
	})
	require.NoError(t, err)

	consumer := newTestPaymentConsumer(f.svc)

	assert.NoError(t, consumer.processRecord(context.Background(), &kgo.Record{Value: payload}))
}

func TestPaymentConsumer_ProcessRecordRejectsMalformed(t *testing.T) {
	f := newWorkerFixture(t)
	consumer := newTestPaymentConsumer(f.svc)

	err := consumer.processRecord(context.Background(), &kgo.Record{Value: []byte("{")})
	assert.Error(t, err)

	err = consumer.processRecord(context.Background(), &kgo.Record{Value: []byte("{}")})
	assert.Error(t, err)
}
