package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexxgorcea9/primepass/internal/dto"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/pkg/response"
	"github.com/alexxgorcea9/primepass/pkg/telemetry"
)

// EventHandler handles event catalog and capacity HTTP requests
type EventHandler struct {
	service service.RegistrationService
}

// NewEventHandler creates a new event handler
func NewEventHandler(svc service.RegistrationService) *EventHandler {
	return &EventHandler{service: svc}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateEvent(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// CreateTier handles POST /events/:id/tiers
func (h *EventHandler) CreateTier(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create_tier")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	var req dto.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateTier(ctx, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("tier_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// CreateWave handles POST /events/:id/waves
func (h *EventHandler) CreateWave(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create_wave")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	var req dto.CreateWaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateWave(ctx, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("wave_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// GetEventAvailability handles GET /events/:id/availability
func (h *EventHandler) GetEventAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.service.GetEventAvailability(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetTierAvailability handles GET /tiers/:id/availability
func (h *EventHandler) GetTierAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.tier_availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tierID := c.Param("id")
	waveID := c.Query("wave_id")
	span.SetAttributes(attribute.String("tier_id", tierID))

	result, err := h.service.GetTierAvailability(ctx, tierID, waveID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// AddTierCapacity handles PATCH /tiers/:id/capacity
func (h *EventHandler) AddTierCapacity(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.add_tier_capacity")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tierID := c.Param("id")
	span.SetAttributes(attribute.String("tier_id", tierID))

	var req dto.AddCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.AddTierCapacity(ctx, tierID, req.Delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("promoted", result.Promoted))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// AddWaveCapacity handles PATCH /waves/:id/capacity
func (h *EventHandler) AddWaveCapacity(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.add_wave_capacity")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	waveID := c.Param("id")
	span.SetAttributes(attribute.String("wave_id", waveID))

	var req dto.AddCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.AddWaveCapacity(ctx, waveID, req.Delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("promoted", result.Promoted))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
