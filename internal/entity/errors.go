package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Catalog errors
	ErrExperienceNotFound = errors.New("experience not found")
	ErrSlotNotFound       = errors.New("slot not found")

	// Booking errors
	ErrBookingNotFound        = errors.New("booking not found")
	ErrBookingAlreadyExists   = errors.New("booking already exists")
	ErrBookingRefExists       = errors.New("booking reference already exists")
	ErrIdempotencyKeyExists   = errors.New("idempotency key already used")
	ErrCapacityExceeded       = errors.New("slot capacity exceeded")
	ErrRefGenerationExhausted = errors.New("booking reference generation exhausted")

	// Promo errors
	ErrPromoNotFound = errors.New("invalid or expired promo code")

	// General errors
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// CapacityError reports how many seats were left when a reservation was refused.
type CapacityError struct {
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d remaining", ErrCapacityExceeded, e.Remaining)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// ValidationError carries a user facing message plus per-field details.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func NewValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation, e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
