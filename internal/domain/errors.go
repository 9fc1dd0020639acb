package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked        = errors.New("account locked")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrSessionExpired       = errors.New("session expired")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")
	ErrIdempotencyConflict  = errors.New("idempotency conflict")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenConsumed        = errors.New("token already consumed")
	ErrRateLimited          = errors.New("rate limited")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrFlowIncomplete is returned when onboarding has not reached the stage a route needs.
	ErrFlowIncomplete     = errors.New("onboarding flow incomplete")
	ErrConsentRequired    = errors.New("consent required")
	ErrPaymentRequired    = errors.New("payment required")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrAIUnavailable wraps ErrServiceUnavailable for the remedy generator.
	ErrAIUnavailable = fmt.Errorf("%w: remedy generation unavailable", ErrServiceUnavailable)
)

// FieldError is a single validation failure bound to a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field failure of one payload so callers can report them together.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
