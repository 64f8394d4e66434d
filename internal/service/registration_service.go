// Package service implements the registration engine's business operations on
// top of the allocation coordinator, the capacity ledger, and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/internal/dto"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/metrics"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/pkg/logger"
	"github.com/alexxgorcea9/primepass/pkg/telemetry"
)

// RegistrationService defines the registration engine's operations
type RegistrationService interface {
	// CreateEvent creates an event
	CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error)
	// CreateTier adds a tier to an event and registers its capacity counter
	CreateTier(ctx context.Context, eventID string, req *dto.CreateTierRequest) (*dto.TierResponse, error)
	// CreateWave adds a wave to an event and registers its capacity counter
	CreateWave(ctx context.Context, eventID string, req *dto.CreateWaveRequest) (*dto.WaveResponse, error)

	// CreateRegistration registers a user for an event. The returned
	// registration is already decided: confirmed or waitlisted.
	CreateRegistration(ctx context.Context, userID string, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error)
	// CancelRegistration cancels a registration. Cancelling a cancelled
	// registration is a no-op. A freed confirmed slot promotes the oldest
	// waitlisted registration of the same pool.
	CancelRegistration(ctx context.Context, registrationID, userID, reason string) (*dto.RegistrationResponse, error)
	// CheckIn records attendance for a confirmed registration. Repeat
	// check-ins report AlreadyCheckedIn and keep the original timestamp.
	CheckIn(ctx context.Context, registrationID, qrCode string) (*dto.CheckInResponse, error)
	// GetRegistration retrieves a registration owned by the user
	GetRegistration(ctx context.Context, registrationID, userID string) (*dto.RegistrationResponse, error)
	// GetUserRegistrations lists the user's registrations, newest first
	GetUserRegistrations(ctx context.Context, userID string, limit, offset int) ([]*dto.RegistrationResponse, error)

	// GetEventAvailability returns advisory counters for every pool of an event
	GetEventAvailability(ctx context.Context, eventID string) (*dto.EventAvailabilityResponse, error)
	// GetTierAvailability returns advisory counters for one tier, and for a
	// wave pool when waveID is given
	GetTierAvailability(ctx context.Context, tierID, waveID string) (*dto.TierAvailabilityResponse, error)

	// HandlePaymentUpdate records a payment signal from the payment
	// collaborator. A failed or refunded payment cancels an active registration.
	HandlePaymentUpdate(ctx context.Context, req *dto.PaymentUpdateRequest) error

	// AddTierCapacity raises a tier's capacity and promotes from its waitlists
	AddTierCapacity(ctx context.Context, tierID string, delta int64) (*dto.CapacityResponse, error)
	// AddWaveCapacity raises a wave's capacity and promotes from its waitlists
	AddWaveCapacity(ctx context.Context, waveID string, delta int64) (*dto.CapacityResponse, error)
}

type registrationService struct {
	events      repository.EventRepository
	regs        repository.RegistrationRepository
	ledger      ledger.Ledger
	coordinator *allocation.Coordinator
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	events repository.EventRepository,
	regs repository.RegistrationRepository,
	l ledger.Ledger,
	coordinator *allocation.Coordinator,
) RegistrationService {
	return &registrationService{
		events:      events,
		regs:        regs,
		ledger:      l,
		coordinator: coordinator,
	}
}

// CreateEvent creates an event
func (s *registrationService) CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.create_event")
	defer span.End()

	if req.Capacity <= 0 {
		span.SetStatus(codes.Error, "invalid capacity")
		return nil, domain.ErrNegativeCapacity
	}

	now := time.Now()
	event := &domain.Event{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Capacity:      req.Capacity,
		AllowMultiple: req.AllowMultiple,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.events.CreateEvent(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create event")
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	span.SetAttributes(attribute.String("event.id", event.ID))
	span.SetStatus(codes.Ok, "event created")
	return dto.EventFromDomain(event), nil
}

// CreateTier adds a tier to an event and registers its capacity counter
func (s *registrationService) CreateTier(ctx context.Context, eventID string, req *dto.CreateTierRequest) (*dto.TierResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.create_tier")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if req.Capacity <= 0 {
		span.SetStatus(codes.Error, "invalid capacity")
		return nil, domain.ErrNegativeCapacity
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, "event not found")
		return nil, err
	}

	now := time.Now()
	tier := &domain.Tier{
		ID:            uuid.New().String(),
		EventID:       eventID,
		Name:          req.Name,
		Capacity:      req.Capacity,
		Price:         req.Price,
		IsActive:      true,
		SaleStartDate: req.SaleStartDate,
		SaleEndDate:   req.SaleEndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.events.CreateTier(ctx, tier); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create tier")
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}
	if err := s.ledger.Register(ctx, ledger.TierKey(tier.ID), tier.Capacity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register tier counter")
		return nil, fmt.Errorf("failed to register tier counter: %w", err)
	}

	span.SetAttributes(attribute.String("tier.id", tier.ID))
	span.SetStatus(codes.Ok, "tier created")
	return dto.TierFromDomain(tier), nil
}

// CreateWave adds a wave to an event and registers its capacity counter
func (s *registrationService) CreateWave(ctx context.Context, eventID string, req *dto.CreateWaveRequest) (*dto.WaveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.create_wave")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if req.Capacity <= 0 {
		span.SetStatus(codes.Error, "invalid capacity")
		return nil, domain.ErrNegativeCapacity
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, "event not found")
		return nil, err
	}
	for _, tierID := range req.TierIDs {
		tier, err := s.events.GetTier(ctx, tierID)
		if err != nil {
			span.SetStatus(codes.Error, "tier not found")
			return nil, err
		}
		if tier.EventID != eventID {
			span.SetStatus(codes.Error, "tier belongs to another event")
			return nil, domain.ErrInvalidReference
		}
	}

	now := time.Now()
	wave := &domain.Wave{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Name:      req.Name,
		Capacity:  req.Capacity,
		TierIDs:   req.TierIDs,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.events.CreateWave(ctx, wave); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create wave")
		return nil, fmt.Errorf("failed to create wave: %w", err)
	}
	if err := s.ledger.Register(ctx, ledger.WaveKey(wave.ID), wave.Capacity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register wave counter")
		return nil, fmt.Errorf("failed to register wave counter: %w", err)
	}

	span.SetAttributes(attribute.String("wave.id", wave.ID))
	span.SetStatus(codes.Ok, "wave created")
	return dto.WaveFromDomain(wave), nil
}

// CreateRegistration registers a user for an event and decides the outcome
// within the same call
func (s *registrationService) CreateRegistration(ctx context.Context, userID string, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", req.EventID),
		attribute.String("tier.id", req.TierID),
		attribute.String("user.id", userID),
	)

	event, err := s.validateTarget(ctx, userID, req)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	now := time.Now()
	reg := &domain.Registration{
		ID:             uuid.New().String(),
		EventID:        event.ID,
		UserID:         userID,
		TierID:         req.TierID,
		WaveID:         req.WaveID,
		Status:         domain.RegistrationStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		AdditionalInfo: req.AdditionalInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !event.AllowMultiple {
		// The store enforces this key's uniqueness across active
		// registrations, closing the race two concurrent creates would win
		// past the advisory count check above.
		reg.DedupeKey = fmt.Sprintf("%s:%s", event.ID, userID)
	}
	if err := reg.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid registration")
		return nil, err
	}
	if err := s.regs.Create(ctx, reg); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrDuplicateRegistration) {
			span.SetStatus(codes.Error, "duplicate registration")
			return nil, err
		}
		span.SetStatus(codes.Error, "failed to create registration")
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	allocStart := time.Now()
	status, err := s.coordinator.Allocate(ctx, reg)
	if err != nil {
		// Never leave a registration stuck in pending
		s.cancelAfterFailedAllocation(ctx, reg, err)
		if errors.Is(err, domain.ErrAllocationTimeout) {
			metrics.RecordAllocationTimeout(ctx, reg.EventID, reg.TierID)
			span.SetStatus(codes.Error, "allocation timed out")
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		return nil, fmt.Errorf("allocation failed: %w", err)
	}

	elapsed := time.Since(allocStart).Seconds()
	switch status {
	case domain.RegistrationStatusConfirmed:
		metrics.RecordConfirmation(ctx, reg.EventID, reg.TierID, elapsed)
	case domain.RegistrationStatusWaitlisted:
		metrics.RecordWaitlist(ctx, reg.EventID, reg.TierID, elapsed)
	}

	span.SetAttributes(
		attribute.String("registration.id", reg.ID),
		attribute.String("registration.status", string(status)),
	)
	span.SetStatus(codes.Ok, "registration decided")
	return dto.FromDomain(reg), nil
}

// validateTarget resolves and validates the event, tier, and optional wave the
// request points at, and enforces the one-active-registration rule
func (s *registrationService) validateTarget(ctx context.Context, userID string, req *dto.CreateRegistrationRequest) (*domain.Event, error) {
	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	tier, err := s.events.GetTier(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if tier.EventID != event.ID {
		return nil, domain.ErrInvalidReference
	}
	if !tier.IsActive {
		return nil, domain.ErrTierInactive
	}

	now := time.Now()
	if !tier.OnSaleAt(now) {
		return nil, domain.ErrOutsideSaleWindow
	}

	if req.WaveID != "" {
		wave, err := s.events.GetWave(ctx, req.WaveID)
		if err != nil {
			return nil, err
		}
		if wave.EventID != event.ID {
			return nil, domain.ErrInvalidReference
		}
		if !wave.IncludesTier(tier.ID) {
			return nil, domain.ErrInvalidReference
		}
		if !wave.OpenAt(now) {
			return nil, domain.ErrOutsideSaleWindow
		}
	}

	if !event.AllowMultiple {
		count, err := s.regs.CountActiveByUserAndEvent(ctx, userID, event.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count registrations: %w", err)
		}
		if count > 0 {
			return nil, domain.ErrDuplicateRegistration
		}
	}

	return event, nil
}

// cancelAfterFailedAllocation moves a pending registration to cancelled so the
// caller can retry with a fresh one
func (s *registrationService) cancelAfterFailedAllocation(ctx context.Context, reg *domain.Registration, cause error) {
	reason := "allocation failed"
	if errors.Is(cause, domain.ErrAllocationTimeout) {
		reason = "allocation timed out"
	}
	if err := reg.Cancel(reason); err != nil {
		return
	}
	if err := s.regs.Update(ctx, reg); err != nil {
		logger.Get().Error("failed to cancel registration after allocation failure",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}
}

// CancelRegistration cancels a registration owned by the user
func (s *registrationService) CancelRegistration(ctx context.Context, registrationID, userID, reason string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("registration.id", registrationID))

	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		span.SetStatus(codes.Error, "registration not found")
		return nil, err
	}
	if userID != "" && !reg.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "registration not owned by user")
		return nil, domain.ErrRegistrationNotFound
	}

	if reg.IsCancelled() {
		span.SetStatus(codes.Ok, "already cancelled")
		return dto.FromDomain(reg), nil
	}

	wasWaitlisted := reg.IsWaitlisted()
	if reason == "" {
		reason = "cancelled by user"
	}
	if err := s.coordinator.Release(ctx, reg, reason); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to cancel registration")
		return nil, err
	}

	metrics.RecordCancellation(ctx, reg.EventID, reg.TierID, wasWaitlisted)
	span.SetStatus(codes.Ok, "registration cancelled")
	return dto.FromDomain(reg), nil
}

// CheckIn records attendance for a confirmed registration
func (s *registrationService) CheckIn(ctx context.Context, registrationID, qrCode string) (*dto.CheckInResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.checkin")
	defer span.End()
	span.SetAttributes(attribute.String("registration.id", registrationID))

	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		span.SetStatus(codes.Error, "registration not found")
		return nil, err
	}
	// The QR code never changes once assigned, so checking the pre-fetched
	// copy is safe.
	if qrCode != "" && reg.QRCode != qrCode {
		span.SetStatus(codes.Error, "qr code mismatch")
		return nil, domain.ErrQRCodeMismatch
	}
	if !reg.IsConfirmed() {
		span.SetStatus(codes.Error, "registration not confirmed")
		return nil, domain.ErrNotConfirmed
	}

	// The store decides who checks in first; concurrent calls agree on a
	// single winner and everyone else reports a repeat.
	reg, first, err := s.regs.MarkCheckedIn(ctx, registrationID, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record check-in")
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	if !reg.IsConfirmed() {
		span.SetStatus(codes.Error, "registration not confirmed")
		return nil, domain.ErrNotConfirmed
	}

	if first {
		s.coordinator.EmitCheckin(ctx, reg)
		metrics.RecordCheckin(ctx, reg.EventID)
	}

	span.SetAttributes(attribute.Bool("checkin.repeat", !first))
	span.SetStatus(codes.Ok, "checked in")
	return &dto.CheckInResponse{
		RegistrationID:   reg.ID,
		CheckedIn:        true,
		AlreadyCheckedIn: !first,
		CheckedInAt:      reg.CheckedInAt,
	}, nil
}

// GetRegistration retrieves a registration owned by the user
func (s *registrationService) GetRegistration(ctx context.Context, registrationID, userID string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get")
	defer span.End()
	span.SetAttributes(attribute.String("registration.id", registrationID))

	reg, err := s.regs.GetByID(ctx, registrationID)
	if err != nil {
		span.SetStatus(codes.Error, "registration not found")
		return nil, err
	}
	if userID != "" && !reg.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "registration not owned by user")
		return nil, domain.ErrRegistrationNotFound
	}

	span.SetStatus(codes.Ok, "registration retrieved")
	return dto.FromDomain(reg), nil
}

// GetUserRegistrations lists the user's registrations, newest first
func (s *registrationService) GetUserRegistrations(ctx context.Context, userID string, limit, offset int) ([]*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.list_by_user")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	regs, err := s.regs.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list registrations")
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	out := make([]*dto.RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, dto.FromDomain(reg))
	}

	span.SetAttributes(attribute.Int("registrations.count", len(out)))
	span.SetStatus(codes.Ok, "registrations listed")
	return out, nil
}

// GetEventAvailability returns advisory counters for every pool of an event
func (s *registrationService) GetEventAvailability(ctx context.Context, eventID string) (*dto.EventAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.event_availability")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, "event not found")
		return nil, err
	}

	tiers, err := s.events.ListTiersByEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list tiers")
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	waves, err := s.events.ListWavesByEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list waves")
		return nil, fmt.Errorf("failed to list waves: %w", err)
	}

	resp := &dto.EventAvailabilityResponse{
		EventID: eventID,
		Tiers:   make([]dto.AvailabilitySnapshot, 0, len(tiers)),
		Waves:   make([]dto.AvailabilitySnapshot, 0, len(waves)),
	}
	for _, tier := range tiers {
		snap, err := s.ledger.Snapshot(ctx, ledger.TierKey(tier.ID))
		if err != nil {
			continue
		}
		resp.Tiers = append(resp.Tiers, availabilityOf(tier.ID, tier.Name, snap))
	}
	for _, wave := range waves {
		snap, err := s.ledger.Snapshot(ctx, ledger.WaveKey(wave.ID))
		if err != nil {
			continue
		}
		resp.Waves = append(resp.Waves, availabilityOf(wave.ID, wave.Name, snap))
	}

	span.SetStatus(codes.Ok, "availability read")
	return resp, nil
}

// GetTierAvailability returns advisory counters for one tier, plus the wave
// pool when waveID is given
func (s *registrationService) GetTierAvailability(ctx context.Context, tierID, waveID string) (*dto.TierAvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.tier_availability")
	defer span.End()
	span.SetAttributes(attribute.String("tier.id", tierID))

	tier, err := s.events.GetTier(ctx, tierID)
	if err != nil {
		span.SetStatus(codes.Error, "tier not found")
		return nil, err
	}
	snap, err := s.ledger.Snapshot(ctx, ledger.TierKey(tier.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read tier counter")
		return nil, fmt.Errorf("failed to read tier counter: %w", err)
	}

	resp := &dto.TierAvailabilityResponse{
		Tier: availabilityOf(tier.ID, tier.Name, snap),
	}

	if waveID != "" {
		wave, err := s.events.GetWave(ctx, waveID)
		if err != nil {
			span.SetStatus(codes.Error, "wave not found")
			return nil, err
		}
		if !wave.IncludesTier(tier.ID) {
			span.SetStatus(codes.Error, "wave does not include tier")
			return nil, domain.ErrInvalidReference
		}
		waveSnap, err := s.ledger.Snapshot(ctx, ledger.WaveKey(wave.ID))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read wave counter")
			return nil, fmt.Errorf("failed to read wave counter: %w", err)
		}
		waveAvail := availabilityOf(wave.ID, wave.Name, waveSnap)
		resp.Wave = &waveAvail
	}

	span.SetStatus(codes.Ok, "availability read")
	return resp, nil
}

func availabilityOf(id, name string, snap ledger.Snapshot) dto.AvailabilitySnapshot {
	return dto.AvailabilitySnapshot{
		ID:        id,
		Name:      name,
		Capacity:  snap.Capacity,
		Used:      snap.Used,
		Remaining: snap.Remaining(),
	}
}

// HandlePaymentUpdate records a payment signal from the payment collaborator
func (s *registrationService) HandlePaymentUpdate(ctx context.Context, req *dto.PaymentUpdateRequest) error {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.payment_update")
	defer span.End()
	span.SetAttributes(
		attribute.String("registration.id", req.RegistrationID),
		attribute.String("payment.status", req.PaymentStatus),
	)

	status := domain.PaymentStatus(req.PaymentStatus)
	if !status.IsValid() {
		span.SetStatus(codes.Error, "invalid payment status")
		return domain.ErrInvalidPaymentStatus
	}

	reg, err := s.regs.GetByID(ctx, req.RegistrationID)
	if err != nil {
		span.SetStatus(codes.Error, "registration not found")
		return err
	}

	terminal := status == domain.PaymentStatusFailed || status == domain.PaymentStatusRefunded
	if terminal && reg.IsActive() {
		wasWaitlisted := reg.IsWaitlisted()
		if err := s.coordinator.Release(ctx, reg, fmt.Sprintf("payment %s", status)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to cancel registration")
			return err
		}
		metrics.RecordCancellation(ctx, reg.EventID, reg.TierID, wasWaitlisted)
	}

	// Record the payment status after the cancel settles; Release may have
	// adopted a fresher copy of the row. The conditional write keeps this
	// patch from resurrecting a status another writer just changed.
	for reg.PaymentStatus != status {
		prior := reg.Status
		reg.PaymentStatus = status
		reg.UpdatedAt = time.Now()
		err := s.regs.UpdateIfStatus(ctx, reg, prior)
		if errors.Is(err, domain.ErrStaleRegistration) {
			fresh, gerr := s.regs.GetByID(ctx, reg.ID)
			if gerr != nil {
				span.RecordError(gerr)
				span.SetStatus(codes.Error, "failed to record payment status")
				return gerr
			}
			reg = fresh
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to record payment status")
			return fmt.Errorf("failed to record payment status: %w", err)
		}
		break
	}

	span.SetStatus(codes.Ok, "payment status recorded")
	return nil
}

// AddTierCapacity raises a tier's capacity and promotes from its waitlists
func (s *registrationService) AddTierCapacity(ctx context.Context, tierID string, delta int64) (*dto.CapacityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.add_tier_capacity")
	defer span.End()
	span.SetAttributes(
		attribute.String("tier.id", tierID),
		attribute.Int64("capacity.delta", delta),
	)

	tier, err := s.events.GetTier(ctx, tierID)
	if err != nil {
		span.SetStatus(codes.Error, "tier not found")
		return nil, err
	}

	capacity, err := s.ledger.AddCapacity(ctx, ledger.TierKey(tier.ID), delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to adjust capacity")
		return nil, err
	}
	if err := s.events.UpdateTierCapacity(ctx, tier.ID, capacity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist capacity")
		return nil, fmt.Errorf("failed to persist capacity: %w", err)
	}

	promoted, err := s.promotePools(ctx, func(key repository.WaitlistKey) bool {
		return key.TierID == tier.ID
	})
	if err != nil {
		logger.Get().Warn("promotion after capacity increase incomplete",
			zap.String("tier_id", tier.ID),
			zap.Error(err),
		)
	}
	metrics.RecordPromotions(ctx, tier.EventID, tier.ID, int64(promoted))

	snap, err := s.ledger.Snapshot(ctx, ledger.TierKey(tier.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read counter")
		return nil, err
	}

	span.SetAttributes(attribute.Int("promotions", promoted))
	span.SetStatus(codes.Ok, "capacity adjusted")
	return &dto.CapacityResponse{
		ID:       tier.ID,
		Capacity: snap.Capacity,
		Used:     snap.Used,
		Promoted: promoted,
	}, nil
}

// AddWaveCapacity raises a wave's capacity and promotes from its waitlists
func (s *registrationService) AddWaveCapacity(ctx context.Context, waveID string, delta int64) (*dto.CapacityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.add_wave_capacity")
	defer span.End()
	span.SetAttributes(
		attribute.String("wave.id", waveID),
		attribute.Int64("capacity.delta", delta),
	)

	wave, err := s.events.GetWave(ctx, waveID)
	if err != nil {
		span.SetStatus(codes.Error, "wave not found")
		return nil, err
	}

	capacity, err := s.ledger.AddCapacity(ctx, ledger.WaveKey(wave.ID), delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to adjust capacity")
		return nil, err
	}
	if err := s.events.UpdateWaveCapacity(ctx, wave.ID, capacity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist capacity")
		return nil, fmt.Errorf("failed to persist capacity: %w", err)
	}

	promoted, err := s.promotePools(ctx, func(key repository.WaitlistKey) bool {
		return key.WaveID == wave.ID
	})
	if err != nil {
		logger.Get().Warn("promotion after capacity increase incomplete",
			zap.String("wave_id", wave.ID),
			zap.Error(err),
		)
	}
	metrics.RecordPromotions(ctx, wave.EventID, "", int64(promoted))

	snap, err := s.ledger.Snapshot(ctx, ledger.WaveKey(wave.ID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read counter")
		return nil, err
	}

	span.SetAttributes(attribute.Int("promotions", promoted))
	span.SetStatus(codes.Ok, "capacity adjusted")
	return &dto.CapacityResponse{
		ID:       wave.ID,
		Capacity: snap.Capacity,
		Used:     snap.Used,
		Promoted: promoted,
	}, nil
}

// promotePools drains every waitlisted pool the filter selects. It returns the
// promotions made before the first error.
func (s *registrationService) promotePools(ctx context.Context, match func(repository.WaitlistKey) bool) (int, error) {
	keys, err := s.regs.WaitlistedKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list waitlisted pools: %w", err)
	}

	total := 0
	for _, key := range keys {
		if !match(key) {
			continue
		}
		n, err := s.coordinator.PromoteAll(ctx, key)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
