package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remlyo/remlyo-api/internal/domain"
)

// RequestPasswordReset creates a one-time reset token when the user exists.
// It returns success for unknown users to avoid account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.enforceRateLimit(ctx, "reset:"+normalized, 5, time.Hour); err != nil {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil || !user.IsActive {
		return nil
	}

	rawToken := randomHex(32)
	now := s.nowFn()
	if err := s.recovery.CreatePasswordResetToken(ctx, user.UserID, hashToken(rawToken), now, now.Add(time.Hour)); err != nil {
		return err
	}
	s.emit(ctx, eventTypePasswordResetRequest, user.UserID.String(), map[string]any{
		"user_id":      user.UserID,
		"email":        user.Email,
		"token":        rawToken,
		"requested_at": now,
	})
	return nil
}

// ResetPassword consumes a reset token and updates the user credential hash.
func (s *Service) ResetPassword(ctx context.Context, req PasswordResetRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	if err := domain.CheckPasswordPair(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}

	userID, err := s.recovery.ConsumePasswordResetToken(ctx, hashToken(req.Token), s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	now := s.nowFn()
	if err := s.users.UpdatePassword(ctx, userID, passwordHash, now); err != nil {
		return err
	}
	// Existing sessions were opened with the old password.
	if err := s.revokeUserSessions(ctx, userID, now); err != nil {
		return err
	}
	s.emit(ctx, eventTypePasswordChanged, userID.String(), map[string]any{
		"user_id":    userID,
		"changed_at": now,
		"via_reset":  true,
	})
	return nil
}

// RequestEmailVerification issues a fresh verification token for the caller.
func (s *Service) RequestEmailVerification(ctx context.Context, p Principal) error {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", domain.ErrConflict)
	}
	if err := s.enforceRateLimit(ctx, "verify:"+user.UserID.String(), s.cfg.VerifyEmailLimit, s.cfg.VerifyEmailWindow); err != nil {
		return err
	}
	return s.issueEmailVerification(ctx, user)
}

// VerifyEmail consumes a verification token and marks email as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	userID, err := s.recovery.ConsumeEmailVerificationToken(ctx, hashToken(token), s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	if err := s.users.SetEmailVerified(ctx, userID, s.nowFn()); err != nil {
		return err
	}
	s.invalidateFlow(ctx, userID)
	s.emit(ctx, eventTypeEmailVerified, userID.String(), map[string]any{
		"user_id":     userID,
		"verified_at": s.nowFn(),
	})
	return nil
}
