package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

// Register creates an account. The password pair is checked before anything touches storage.
func (s *Service) Register(ctx context.Context, req RegisterRequest, idempotencyKey string) (RegisterResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if err := domain.CheckPasswordPair(req.Password, req.ConfirmPassword); err != nil {
		return RegisterResponse{}, err
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if n := utf8.RuneCountInString(displayName); n < 2 || n > 50 {
		return RegisterResponse{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "display_name", Message: "must be 2-50 characters"}}}
	}

	requestHash := hashRequest(req)
	var replay RegisterResponse
	if ok, err := s.replayIdempotent(ctx, idempotencyKey, requestHash, &replay); err != nil {
		return RegisterResponse{}, err
	} else if ok {
		return replay, nil
	}
	if err := s.reserveIdempotent(ctx, idempotencyKey, requestHash); err != nil {
		return RegisterResponse{}, err
	}

	referral := s.validReferralCode(ctx, req.ReferralCode, uuid.Nil)

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.releaseIdempotent(ctx, idempotencyKey)
		return RegisterResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	consent := domain.ComplianceConsent{Version: s.cfg.ConsentVersion}
	granted := true
	consent.Apply(domain.ConsentInput{GDPR: &granted}, req.IPAddress, s.cfg.ConsentVersion, now)

	event := newEvent(eventTypeUserRegistered, email, map[string]any{
		"email":         email,
		"display_name":  displayName,
		"referral_code": referral,
		"registered_at": now,
	}, now)

	user, err := s.users.CreateWithOutboxTx(ctx, ports.CreateUserTxParams{
		Email:           email,
		DisplayName:     displayName,
		PasswordHash:    passwordHash,
		Role:            domain.RoleUser,
		ReferredBy:      referral,
		RegisteredAtUTC: now,
		Consent:         consent,
	}, event)
	if err != nil {
		s.metrics.Registration("failure")
		s.releaseIdempotent(ctx, idempotencyKey)
		return RegisterResponse{}, err
	}
	s.metrics.Registration("success")

	if err := s.issueEmailVerification(ctx, user); err != nil {
		appLogger().WarnContext(ctx, "failed to issue email verification token",
			"operation", "register",
			"outcome", "warning",
			"user_id", user.UserID,
			"error", err,
		)
	}
	if referral != "" {
		if err := s.affiliates.IncrementReferrals(ctx, referral, now); err != nil {
			appLogger().WarnContext(ctx, "failed to count referral",
				"operation", "register",
				"outcome", "warning",
				"referral_code", referral,
				"error", err,
			)
		}
	}

	resp := RegisterResponse{UserID: user.UserID, Email: user.Email}
	s.completeIdempotent(ctx, idempotencyKey, 201, resp)
	return resp, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}

	lockKey := "login:" + email
	lockState, err := s.lockouts.Get(ctx, lockKey)
	if err == nil && lockState.LockedUntil != nil && lockState.LockedUntil.After(s.nowFn()) {
		return LoginResponse{}, domain.ErrAccountLocked
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	if ok, err := s.hasher.Matches(user.PasswordHash, req.Password); err != nil || !ok {
		_, _ = s.lockouts.RecordFailure(ctx, lockKey, s.nowFn(), s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return LoginResponse{}, domain.ErrInvalidCredentials
	}
	_ = s.lockouts.Clear(ctx, lockKey)

	now := s.nowFn()
	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:         user.UserID,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokenSigner.Issue(ports.SessionClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: session.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return LoginResponse{
		Token:     token,
		SessionID: session.SessionID,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
		User:      toUserView(user),
	}, nil
}

// Authenticate resolves a bearer token into a principal, rejecting revoked or expired sessions.
func (s *Service) Authenticate(ctx context.Context, jwtToken string) (Principal, error) {
	claims, err := s.tokenSigner.Verify(jwtToken)
	if err != nil {
		return Principal{}, domain.ErrUnauthorized
	}
	if s.revocations != nil {
		if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
			return Principal{}, domain.ErrSessionRevoked
		}
	}
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Principal{}, domain.ErrUnauthorized
		}
		return Principal{}, err
	}
	if session.RevokedAt != nil {
		return Principal{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(s.nowFn()) {
		return Principal{}, domain.ErrSessionExpired
	}
	return Principal{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// CurrentRole loads the stored role so role changes apply without waiting for token expiry.
func (s *Service) CurrentRole(ctx context.Context, userID uuid.UUID) (domain.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup user role: %w", err)
	}
	if !user.IsActive {
		return "", domain.ErrForbidden
	}
	return user.Role, nil
}

func (s *Service) Refresh(ctx context.Context, jwtToken string) (RefreshResponse, error) {
	claims, err := s.tokenSigner.Verify(jwtToken)
	if err != nil {
		return RefreshResponse{}, domain.ErrUnauthorized
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return RefreshResponse{}, domain.ErrUnauthorized
	}
	if session.RevokedAt != nil {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}
	if session.ExpiresAt.Before(s.nowFn()) {
		return RefreshResponse{}, domain.ErrSessionExpired
	}
	if session.CreatedAt.Add(s.cfg.SessionAbsoluteTTL).Before(s.nowFn()) {
		return RefreshResponse{}, domain.ErrSessionExpired
	}
	if revoked, _ := s.revocations.IsRevoked(ctx, session.SessionID); revoked {
		return RefreshResponse{}, domain.ErrSessionRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return RefreshResponse{}, domain.ErrUnauthorized
	}

	now := s.nowFn()
	_ = s.sessions.TouchActivity(ctx, session.SessionID, now)

	newToken, err := s.tokenSigner.Issue(ports.SessionClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: claims.SessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("sign refreshed token: %w", err)
	}

	return RefreshResponse{
		Token:     newToken,
		ExpiresIn: int64(s.cfg.TokenTTL.Seconds()),
	}, nil
}

func (s *Service) Logout(ctx context.Context, p Principal) error {
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, p.SessionID, now); err != nil {
		return err
	}
	_ = s.revocations.MarkRevoked(ctx, p.SessionID, now.Add(s.cfg.TokenTTL))
	return nil
}

func (s *Service) Me(ctx context.Context, p Principal) (UserView, error) {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return UserView{}, err
	}
	return toUserView(user), nil
}

// AuthStatus reports whether the caller is signed in and verified. A nil principal is signed out.
func (s *Service) AuthStatus(ctx context.Context, p *Principal) (AuthStatus, error) {
	if p == nil {
		return AuthStatus{}, nil
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthStatus{}, nil
		}
		return AuthStatus{}, err
	}
	if !user.IsActive {
		return AuthStatus{}, nil
	}
	return AuthStatus{Authenticated: true, EmailVerified: user.EmailVerified}, nil
}

func (s *Service) ChangePassword(ctx context.Context, p Principal, req PasswordChangeRequest) error {
	if err := domain.CheckPasswordPair(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if ok, err := s.hasher.Matches(user.PasswordHash, req.CurrentPassword); err != nil || !ok {
		return domain.ErrInvalidCredentials
	}
	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.UserID, passwordHash, s.nowFn()); err != nil {
		return err
	}
	s.emit(ctx, eventTypePasswordChanged, user.UserID.String(), map[string]any{
		"user_id":    user.UserID,
		"changed_at": s.nowFn(),
	})
	return nil
}

func (s *Service) issueEmailVerification(ctx context.Context, user domain.User) error {
	now := s.nowFn()
	token := randomHex(32)
	if err := s.recovery.CreateEmailVerificationToken(ctx, user.UserID, hashToken(token), now, now.Add(24*time.Hour)); err != nil {
		return err
	}
	s.emit(ctx, eventTypeEmailVerifyRequested, user.UserID.String(), map[string]any{
		"user_id":      user.UserID,
		"email":        user.Email,
		"token":        token,
		"requested_at": now,
	})
	return nil
}
