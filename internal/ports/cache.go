package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

// LockoutState is the current lockout envelope for a login or rate-limit key.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutStore handles short-lived brute-force protection state.
type LockoutStore interface {
	Get(ctx context.Context, key string) (LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (LockoutState, error)
	Clear(ctx context.Context, key string) error
}

// SessionRevocationStore keeps revocation markers with token-aligned TTL.
type SessionRevocationStore interface {
	MarkRevoked(ctx context.Context, sessionID uuid.UUID, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// FlowStatusCache memoizes derived onboarding status per user.
type FlowStatusCache interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.FlowStatus, bool, error)
	Put(ctx context.Context, userID uuid.UUID, status domain.FlowStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// QuotaCounter counts uses of a metered feature inside a fixed window.
type QuotaCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Decrement returns one use to a live window. A missing or empty window is left alone.
	Decrement(ctx context.Context, key string) error
}
