package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexxgorcea9/primepass/internal/dto"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/pkg/middleware"
	"github.com/alexxgorcea9/primepass/pkg/response"
	"github.com/alexxgorcea9/primepass/pkg/telemetry"
)

// RegistrationHandler handles registration HTTP requests
type RegistrationHandler struct {
	service service.RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(svc service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// CreateRegistration handles POST /events/:id/registrations. The response is
// the decided registration: confirmed or waitlisted, never pending.
func (h *RegistrationHandler) CreateRegistration(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}
	req.EventID = c.Param("id")

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.String("tier_id", req.TierID),
	)

	result, err := h.service.CreateRegistration(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("registration_id", result.ID),
		attribute.String("registration_status", result.Status),
	)
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// GetRegistration handles GET /registrations/:id
func (h *RegistrationHandler) GetRegistration(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	registrationID := c.Param("id")
	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("user_id", userID),
	)

	result, err := h.service.GetRegistration(ctx, registrationID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ListRegistrations handles GET /registrations
func (h *RegistrationHandler) ListRegistrations(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	limit := 20
	offset := 0
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if o := c.Query("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	result, err := h.service.GetUserRegistrations(ctx, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CancelRegistration handles DELETE /registrations/:id
func (h *RegistrationHandler) CancelRegistration(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	registrationID := c.Param("id")
	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("user_id", userID),
	)

	var req dto.CancelRegistrationRequest
	// Reason is optional, an empty body is fine
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.CancelRegistration(ctx, registrationID, userID, req.Reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CheckIn handles POST /registrations/:id/checkin
func (h *RegistrationHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.checkin")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	registrationID := c.Param("id")
	span.SetAttributes(attribute.String("registration_id", registrationID))

	var req dto.CheckInRequest
	// QR code is optional, an empty body means check in by id alone
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.CheckIn(ctx, registrationID, req.QRCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("already_checked_in", result.AlreadyCheckedIn))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// PaymentWebhook handles POST /payments/webhook
func (h *RegistrationHandler) PaymentWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.registration.payment_webhook")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("registration_id", req.RegistrationID),
		attribute.String("payment_status", req.PaymentStatus),
	)

	if err := h.service.HandlePaymentUpdate(ctx, &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"registration_id": req.RegistrationID})
}
