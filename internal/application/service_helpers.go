package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func appLogger() *slog.Logger {
	return slog.Default().With(
		"service", "remlyo-api",
		"module", "application",
		"layer", "application",
	)
}

// normalizeEmail canonicalizes and validates email format before persistence/comparison.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", &domain.ValidationError{Fields: []domain.FieldError{{Field: "email", Message: "is required"}}}
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", &domain.ValidationError{Fields: []domain.FieldError{{Field: "email", Message: "must be a valid email"}}}
	}
	return trimmed, nil
}

// hashRequest computes deterministic request fingerprint for idempotency conflict detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a cryptographically random hex token.
func randomHex(bytesLen int) string {
	raw := make([]byte, bytesLen)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

// randomCode returns an upper-case alphanumeric code of the given length.
func randomCode(size int) string {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < size; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			n = big.NewInt(int64(i % len(codeAlphabet)))
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}

func normalizePage(q PageQuery) (int, ports.Page) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, ports.Page{Limit: limit, Offset: (page - 1) * limit}
}

func pageMeta(page int, window ports.Page, total int64) PageMeta {
	pages := 0
	if window.Limit > 0 {
		pages = int((total + int64(window.Limit) - 1) / int64(window.Limit))
	}
	return PageMeta{Page: page, Limit: window.Limit, Total: total, TotalPages: pages}
}

func toUserView(u domain.User) UserView {
	return UserView{
		UserID:        u.UserID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
	}
}

func newEvent(eventType, partitionKey string, payload map[string]any, at time.Time) ports.OutboxEvent {
	raw, _ := json.Marshal(payload)
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      raw,
		OccurredAt:   at,
	}
}

// emit enqueues an event outside of a repository transaction. Failures are logged, not returned.
func (s *Service) emit(ctx context.Context, eventType, partitionKey string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, newEvent(eventType, partitionKey, payload, s.nowFn())); err != nil {
		appLogger().WarnContext(ctx, "failed to enqueue event",
			"operation", "outbox_enqueue",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
	}
}

func (s *Service) enforceRateLimit(ctx context.Context, key string, threshold int, window time.Duration) error {
	if s.lockouts == nil || threshold <= 0 || window <= 0 {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}

	state, err := s.lockouts.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		return domain.ErrRateLimited
	}

	now := s.nowFn()
	updated, err := s.lockouts.RecordFailure(ctx, key, now, threshold, window)
	if err != nil {
		appLogger().WarnContext(ctx, "rate-limit state unavailable",
			"operation", "rate_limit",
			"outcome", "warning",
			"key", key,
			"error", err,
		)
		return nil
	}
	if updated.LockedUntil != nil && updated.LockedUntil.After(now) {
		return domain.ErrRateLimited
	}
	return nil
}

// replayIdempotent looks up a stored response for key. It returns true and fills out when the
// same request was already completed, and ErrIdempotencyConflict when the key was used for a
// different request.
func (s *Service) replayIdempotent(ctx context.Context, key, requestHash string, out any) (bool, error) {
	if key == "" || s.idempotency == nil {
		return false, nil
	}
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil || rec == nil {
		return false, nil
	}
	if rec.RequestHash != requestHash {
		return false, domain.ErrIdempotencyConflict
	}
	if rec.Status != "COMPLETED" || len(rec.ResponseBody) == 0 {
		return false, fmt.Errorf("%w: request is still in progress", domain.ErrIdempotencyConflict)
	}
	if err := json.Unmarshal(rec.ResponseBody, out); err != nil {
		return false, fmt.Errorf("decode stored response: %w", err)
	}
	return true, nil
}

func (s *Service) reserveIdempotent(ctx context.Context, key, requestHash string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.idempotencyTTL())); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
	}
	return nil
}

// releaseIdempotent frees a reserved key after the request failed.
func (s *Service) releaseIdempotent(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		appLogger().WarnContext(ctx, "failed to release idempotency key",
			"operation", "idempotency_release",
			"outcome", "warning",
			"error", err,
		)
	}
}

func (s *Service) completeIdempotent(ctx context.Context, key string, code int, response any) {
	if key == "" || s.idempotency == nil {
		return
	}
	body, _ := json.Marshal(response)
	_ = s.idempotency.Complete(ctx, key, code, body, s.nowFn())
}

func (s *Service) idempotencyTTL() time.Duration {
	if s.cfg.IdempotencyKeepFor > 0 {
		return s.cfg.IdempotencyKeepFor
	}
	return 7 * 24 * time.Hour
}

func (s *Service) invalidateFlow(ctx context.Context, userID uuid.UUID) {
	if s.flowCache == nil {
		return
	}
	if err := s.flowCache.Invalidate(ctx, userID); err != nil {
		appLogger().WarnContext(ctx, "flow cache invalidation failed",
			"operation", "flow_invalidate",
			"outcome", "warning",
			"user_id", userID,
			"error", err,
		)
	}
}

// revokeUserSessions closes the user's sessions in storage and mirrors them into the
// revocation store so tokens stop working before the database is consulted.
func (s *Service) revokeUserSessions(ctx context.Context, userID uuid.UUID, now time.Time) error {
	revoked, err := s.sessions.RevokeAllByUser(ctx, userID, now)
	if err != nil {
		return err
	}
	if s.revocations == nil {
		return nil
	}
	for _, session := range revoked {
		if err := s.revocations.MarkRevoked(ctx, session.SessionID, session.ExpiresAt); err != nil {
			appLogger().WarnContext(ctx, "failed to cache session revocation",
				"operation", "revoke_sessions",
				"outcome", "warning",
				"session_id", session.SessionID,
				"error", err,
			)
		}
	}
	return nil
}
