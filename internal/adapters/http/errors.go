package http

import (
	"errors"
	"net/http"

	"github.com/remlyo/remlyo-api/internal/domain"
)

type mappedError struct {
	status  int
	code    string
	message string
	details []domain.FieldError
}

// mapDomainError turns a domain sentinel into the HTTP status and machine code clients branch on.
func mapDomainError(err error) mappedError {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrPasswordMismatch):
		return mappedError{http.StatusBadRequest, "PASSWORD_MISMATCH", "passwords do not match", nil}
	case errors.As(err, &verr):
		return mappedError{http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", verr.Fields}
	case errors.Is(err, domain.ErrInvalidInput):
		return mappedError{http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil}
	case errors.Is(err, domain.ErrTokenConsumed):
		return mappedError{http.StatusBadRequest, "TOKEN_CONSUMED", "token has already been used", nil}
	case errors.Is(err, domain.ErrTokenExpired):
		return mappedError{http.StatusBadRequest, "TOKEN_EXPIRED", "token expired", nil}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return mappedError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil}
	case errors.Is(err, domain.ErrSessionExpired):
		return mappedError{http.StatusUnauthorized, "SESSION_EXPIRED", "session expired", nil}
	case errors.Is(err, domain.ErrSessionRevoked):
		return mappedError{http.StatusUnauthorized, "SESSION_REVOKED", "session revoked", nil}
	case errors.Is(err, domain.ErrUnauthorized):
		return mappedError{http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials", nil}
	case errors.Is(err, domain.ErrFlowIncomplete):
		return mappedError{http.StatusForbidden, "FLOW_INCOMPLETE", err.Error(), nil}
	case errors.Is(err, domain.ErrConsentRequired):
		return mappedError{http.StatusForbidden, "CONSENT_REQUIRED", err.Error(), nil}
	case errors.Is(err, domain.ErrForbidden):
		return mappedError{http.StatusForbidden, "FORBIDDEN", err.Error(), nil}
	case errors.Is(err, domain.ErrNotFound):
		return mappedError{http.StatusNotFound, "NOT_FOUND", "resource not found", nil}
	case errors.Is(err, domain.ErrAlreadyAuthenticated):
		return mappedError{http.StatusConflict, "ALREADY_AUTHENTICATED", "already signed in", nil}
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return mappedError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", err.Error(), nil}
	case errors.Is(err, domain.ErrConflict):
		return mappedError{http.StatusConflict, "CONFLICT", err.Error(), nil}
	case errors.Is(err, domain.ErrPaymentFailed):
		return mappedError{http.StatusPaymentRequired, "PAYMENT_FAILED", err.Error(), nil}
	case errors.Is(err, domain.ErrPaymentRequired):
		return mappedError{http.StatusPaymentRequired, "PAYMENT_REQUIRED", err.Error(), nil}
	case errors.Is(err, domain.ErrAccountLocked):
		return mappedError{http.StatusTooManyRequests, "ACCOUNT_LOCKED", "account temporarily locked", nil}
	case errors.Is(err, domain.ErrRateLimited):
		return mappedError{http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil}
	case errors.Is(err, domain.ErrQuotaExceeded):
		return mappedError{http.StatusTooManyRequests, "QUOTA_EXCEEDED", "daily generation quota reached", nil}
	case errors.Is(err, domain.ErrAIUnavailable):
		return mappedError{http.StatusServiceUnavailable, "AI_UNAVAILABLE", "remedy generation is unavailable", nil}
	case errors.Is(err, domain.ErrServiceUnavailable):
		return mappedError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "upstream service unavailable", nil}
	default:
		return mappedError{http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil}
	}
}
