package domain

import "errors"

// Domain errors
var (
	// Registration lifecycle errors
	ErrRegistrationNotFound      = errors.New("registration not found")
	ErrDuplicateRegistration     = errors.New("user already has an active registration for this event")
	ErrInvalidTransition         = errors.New("invalid registration status transition")
	ErrInvalidRegistrationStatus = errors.New("invalid registration status")
	ErrNotConfirmed              = errors.New("registration is not confirmed")
	ErrQRCodeMismatch            = errors.New("qr code does not match the registration")

	// Allocation errors
	ErrAllocationTimeout = errors.New("timed out waiting for allocation slot")
	// ErrStaleRegistration signals that a conditional write lost a race: the
	// stored status no longer matches the status the caller observed. Internal
	// to the engine, never surfaced to API callers.
	ErrStaleRegistration = errors.New("registration status changed concurrently")

	// Reference and window errors
	ErrEventNotFound     = errors.New("event not found")
	ErrTierNotFound      = errors.New("tier not found")
	ErrWaveNotFound      = errors.New("wave not found")
	ErrInvalidReference  = errors.New("tier or wave does not belong to the event")
	ErrTierInactive      = errors.New("tier is not active")
	ErrOutsideSaleWindow = errors.New("registration is outside the sale window")
	ErrUnknownCounter    = errors.New("inventory counter not registered")
	ErrCapacityInvariant = errors.New("inventory counter exceeds capacity")
	ErrNegativeCapacity  = errors.New("capacity must not be negative")

	// Validation errors
	ErrInvalidRegistrationID = errors.New("invalid registration id")
	ErrInvalidEventID        = errors.New("invalid event id")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidTierID         = errors.New("invalid tier id")
	ErrInvalidWaveID         = errors.New("invalid wave id")
	ErrInvalidPaymentStatus  = errors.New("invalid payment status")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrWaveNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRegistrationID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidTierID) ||
		errors.Is(err, ErrInvalidWaveID) ||
		errors.Is(err, ErrInvalidPaymentStatus) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrTierInactive) ||
		errors.Is(err, ErrOutsideSaleWindow)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotConfirmed) ||
		errors.Is(err, ErrQRCodeMismatch)
}

// IsRetryableError checks if the caller may safely retry the operation
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrAllocationTimeout)
}
