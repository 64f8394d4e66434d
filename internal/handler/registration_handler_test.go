package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/emitter"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testUserMiddleware injects the user id from the X-User-ID header, standing
// in for the JWT middleware
func testUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	events := repository.NewMemoryEventRepository()
	regs := repository.NewMemoryRegistrationRepository()
	l := ledger.NewMemoryLedger()
	coordinator := allocation.NewCoordinator(l, events, regs, emitter.NewNoOpEmitter(), nil)
	svc := service.NewRegistrationService(events, regs, l, coordinator)

	regHandler := NewRegistrationHandler(svc)
	eventHandler := NewEventHandler(svc)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.Use(testUserMiddleware())

	v1.POST("/events", eventHandler.CreateEvent)
	v1.POST("/events/:id/tiers", eventHandler.CreateTier)
	v1.POST("/events/:id/waves", eventHandler.CreateWave)
	v1.GET("/events/:id/availability", eventHandler.GetEventAvailability)
	v1.POST("/events/:id/registrations", regHandler.CreateRegistration)
	v1.GET("/registrations", regHandler.ListRegistrations)
	v1.GET("/registrations/:id", regHandler.GetRegistration)
	v1.DELETE("/registrations/:id", regHandler.CancelRegistration)
	v1.POST("/registrations/:id/checkin", regHandler.CheckIn)
	v1.GET("/tiers/:id/availability", eventHandler.GetTierAvailability)
	v1.PATCH("/tiers/:id/capacity", eventHandler.AddTierCapacity)
	v1.PATCH("/waves/:id/capacity", eventHandler.AddWaveCapacity)
	v1.POST("/payments/webhook", regHandler.PaymentWebhook)

	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func setupEventWithTier(t *testing.T, router *gin.Engine, capacity int64) (eventID, tierID string) {
	t.Helper()
	w, env := doJSON(t, router, http.MethodPost, "/api/v1/events", "admin", gin.H{
		"name":       "Launch Night",
		"capacity":   1000,
		"start_time": time.Now().Add(24 * time.Hour),
		"end_time":   time.Now().Add(30 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var event struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &event))

	w, env = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/tiers", event.ID), "admin", gin.H{
		"name":     "General",
		"capacity": capacity,
		"price":    49.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var tier struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tier))

	return event.ID, tier.ID
}

func TestCreateRegistrationEndpoint_Confirms(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 2)

	w, env := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "user-1", gin.H{
		"event_id": eventID,
		"tier_id":  tierID,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	var reg struct {
		Status string `json:"status"`
		QRCode string `json:"qr_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, "confirmed", reg.Status)
	assert.NotEmpty(t, reg.QRCode)
}

func TestCreateRegistrationEndpoint_WaitlistsWhenFull(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)

	path := fmt.Sprintf("/api/v1/events/%s/registrations", eventID)
	w, _ := doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, router, http.MethodPost, path, "user-2", gin.H{"tier_id": tierID})
	require.Equal(t, http.StatusCreated, w.Code)

	var reg struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, "waitlisted", reg.Status)
}

func TestCreateRegistrationEndpoint_RequiresAuth(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)

	w, env := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "", gin.H{
		"tier_id": tierID,
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
}

func TestCreateRegistrationEndpoint_UnknownEvent(t *testing.T) {
	router := newTestRouter(t)

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/events/missing/registrations", "user-1", gin.H{
		"tier_id": "missing",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateRegistrationEndpoint_Duplicate(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 5)
	path := fmt.Sprintf("/api/v1/events/%s/registrations", eventID)

	w, _ := doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REGISTRATION", env.Error.Code)
}

func TestCancelRegistrationEndpoint(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)
	path := fmt.Sprintf("/api/v1/events/%s/registrations", eventID)

	_, env := doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	var reg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	w, env := doJSON(t, router, http.MethodDelete, "/api/v1/registrations/"+reg.ID, "user-1", gin.H{
		"reason": "changed plans",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var cancelled struct {
		Status       string `json:"status"`
		StatusReason string `json:"status_reason"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "changed plans", cancelled.StatusReason)
}

func TestCancelRegistrationEndpoint_WrongUser(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)

	_, env := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "user-1", gin.H{
		"tier_id": tierID,
	})
	var reg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	w, _ := doJSON(t, router, http.MethodDelete, "/api/v1/registrations/"+reg.ID, "intruder", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckInEndpoint_Idempotent(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)

	_, env := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "user-1", gin.H{
		"tier_id": tierID,
	})
	var reg struct {
		ID     string `json:"id"`
		QRCode string `json:"qr_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	checkinPath := fmt.Sprintf("/api/v1/registrations/%s/checkin", reg.ID)
	w, env := doJSON(t, router, http.MethodPost, checkinPath, "staff", gin.H{"qr_code": reg.QRCode})
	require.Equal(t, http.StatusOK, w.Code)
	var first struct {
		AlreadyCheckedIn bool `json:"already_checked_in"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.False(t, first.AlreadyCheckedIn)

	w, env = doJSON(t, router, http.MethodPost, checkinPath, "staff", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var second struct {
		AlreadyCheckedIn bool `json:"already_checked_in"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.True(t, second.AlreadyCheckedIn)
}

func TestCheckInEndpoint_WaitlistedRejected(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)
	path := fmt.Sprintf("/api/v1/events/%s/registrations", eventID)

	doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	_, env := doJSON(t, router, http.MethodPost, path, "user-2", gin.H{"tier_id": tierID})
	var reg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	w, env := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/registrations/%s/checkin", reg.ID), "staff", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_CONFIRMED", env.Error.Code)
}

func TestPaymentWebhookEndpoint_InvalidStatus(t *testing.T) {
	router := newTestRouter(t)

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{
		"registration_id": "some-id",
		"payment_status":  "gone",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestAddTierCapacityEndpoint_Promotes(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 1)
	path := fmt.Sprintf("/api/v1/events/%s/registrations", eventID)

	doJSON(t, router, http.MethodPost, path, "user-1", gin.H{"tier_id": tierID})
	doJSON(t, router, http.MethodPost, path, "user-2", gin.H{"tier_id": tierID})

	w, env := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/tiers/%s/capacity", tierID), "admin", gin.H{
		"delta": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var capResp struct {
		Capacity int64 `json:"capacity"`
		Used     int64 `json:"used"`
		Promoted int   `json:"promoted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &capResp))
	assert.Equal(t, int64(2), capResp.Capacity)
	assert.Equal(t, int64(2), capResp.Used)
	assert.Equal(t, 1, capResp.Promoted)
}

func TestEventAvailabilityEndpoint(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 3)

	doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "user-1", gin.H{
		"tier_id": tierID,
	})

	w, env := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/events/%s/availability", eventID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var avail struct {
		Tiers []struct {
			Used      int64 `json:"used"`
			Remaining int64 `json:"remaining"`
		} `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &avail))
	require.Len(t, avail.Tiers, 1)
	assert.Equal(t, int64(1), avail.Tiers[0].Used)
	assert.Equal(t, int64(2), avail.Tiers[0].Remaining)
}

func TestListRegistrationsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	eventID, tierID := setupEventWithTier(t, router, 5)

	doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/events/%s/registrations", eventID), "user-1", gin.H{
		"tier_id": tierID,
	})

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/registrations?limit=10", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var regs []struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "user-1", regs[0].UserID)
}
