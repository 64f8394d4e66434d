// Package metrics holds the engine's OpenTelemetry instruments.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alexxgorcea9/primepass/pkg/telemetry"
)

var (
	// Allocation counters
	RegistrationsConfirmed  *telemetry.Counter
	RegistrationsWaitlisted *telemetry.Counter
	RegistrationsCancelled  *telemetry.Counter
	Promotions              *telemetry.Counter
	Checkins                *telemetry.Counter
	AllocationTimeouts      *telemetry.Counter

	// Histograms
	AllocationDuration *telemetry.Histogram

	// Gauges
	WaitlistDepth *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all engine metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	RegistrationsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_confirmations_total",
		Description: "Total number of registrations confirmed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsWaitlisted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_waitlists_total",
		Description: "Total number of registrations waitlisted",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_cancellations_total",
		Description: "Total number of registrations cancelled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	Promotions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_promotions_total",
		Description: "Total number of waitlist promotions",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	Checkins, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_checkins_total",
		Description: "Total number of check-ins recorded",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AllocationTimeouts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_allocation_timeouts_total",
		Description: "Total number of allocations that timed out waiting for the pool",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AllocationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "registration_allocation_duration_seconds",
		Description: "Time from allocation request to decided outcome",
		Unit:        "s",
	}, []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	WaitlistDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "registration_waitlist_depth",
		Description: "Current number of waitlisted registrations",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordConfirmation records a confirmed allocation
func RecordConfirmation(ctx context.Context, eventID, tierID string, durationSeconds float64) {
	if RegistrationsConfirmed != nil {
		RegistrationsConfirmed.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_id", tierID),
		)
	}
	if AllocationDuration != nil {
		AllocationDuration.Record(ctx, durationSeconds,
			attribute.String("event_id", eventID),
		)
	}
}

// RecordWaitlist records a waitlisted allocation
func RecordWaitlist(ctx context.Context, eventID, tierID string, durationSeconds float64) {
	if RegistrationsWaitlisted != nil {
		RegistrationsWaitlisted.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_id", tierID),
		)
	}
	if AllocationDuration != nil {
		AllocationDuration.Record(ctx, durationSeconds,
			attribute.String("event_id", eventID),
		)
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Inc(ctx)
	}
}

// RecordCancellation records a cancellation; wasWaitlisted shrinks the depth gauge
func RecordCancellation(ctx context.Context, eventID, tierID string, wasWaitlisted bool) {
	if RegistrationsCancelled != nil {
		RegistrationsCancelled.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_id", tierID),
		)
	}
	if wasWaitlisted && WaitlistDepth != nil {
		WaitlistDepth.Dec(ctx)
	}
}

// RecordPromotions records waitlist promotions
func RecordPromotions(ctx context.Context, eventID, tierID string, count int64) {
	if count <= 0 {
		return
	}
	if Promotions != nil {
		Promotions.Add(ctx, count,
			attribute.String("event_id", eventID),
			attribute.String("tier_id", tierID),
		)
	}
	if WaitlistDepth != nil {
		WaitlistDepth.Add(ctx, -count)
	}
}

// RecordCheckin records a check-in
func RecordCheckin(ctx context.Context, eventID string) {
	if Checkins != nil {
		Checkins.Inc(ctx, attribute.String("event_id", eventID))
	}
}

// RecordAllocationTimeout records an allocation that gave up waiting
func RecordAllocationTimeout(ctx context.Context, eventID, tierID string) {
	if AllocationTimeouts != nil {
		AllocationTimeouts.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_id", tierID),
		)
	}
}
