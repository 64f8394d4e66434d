// Package handler exposes the registration engine over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/pkg/response"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrDuplicateRegistration):
		response.Conflict(c, "DUPLICATE_REGISTRATION", err.Error())
	case errors.Is(err, domain.ErrQRCodeMismatch):
		response.Conflict(c, "QR_CODE_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrNotConfirmed):
		response.Conflict(c, "NOT_CONFIRMED", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrCapacityInvariant):
		response.Conflict(c, "CAPACITY_BELOW_USED", err.Error())
	case errors.Is(err, domain.ErrTierInactive):
		response.Error(c, http.StatusBadRequest, "TIER_INACTIVE", err.Error(), "")
	case errors.Is(err, domain.ErrOutsideSaleWindow):
		response.Error(c, http.StatusBadRequest, "OUTSIDE_SALE_WINDOW", err.Error(), "")
	case errors.Is(err, domain.ErrInvalidReference):
		response.Error(c, http.StatusBadRequest, "INVALID_REFERENCE", err.Error(), "")
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case errors.Is(err, domain.ErrNegativeCapacity):
		response.Error(c, http.StatusBadRequest, "INVALID_CAPACITY", err.Error(), "")
	case domain.IsRetryableError(err):
		c.Header("Retry-After", "1")
		response.ServiceUnavailable(c, "ALLOCATION_TIMEOUT", err.Error())
	default:
		response.InternalError(c, err)
	}
}
