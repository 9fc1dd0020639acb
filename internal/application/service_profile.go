package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

func (s *Service) GetProfile(ctx context.Context, p Principal) (domain.HealthProfile, error) {
	profile, err := s.profiles.Get(ctx, p.UserID)
	if err != nil {
		return domain.HealthProfile{}, err
	}
	profile.UserID = p.UserID
	return profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, p Principal, in domain.ProfileInput) (domain.HealthProfile, error) {
	current, err := s.profiles.Get(ctx, p.UserID)
	if err != nil {
		return domain.HealthProfile{}, err
	}
	wasComplete := current.Complete()
	current.UserID = p.UserID

	updated, err := domain.ApplyProfileInput(current, in, s.nowFn())
	if err != nil {
		return domain.HealthProfile{}, err
	}
	if err := s.profiles.Upsert(ctx, updated); err != nil {
		return domain.HealthProfile{}, fmt.Errorf("save profile: %w", err)
	}
	s.invalidateFlow(ctx, p.UserID)
	s.emit(ctx, eventTypeProfileUpdated, p.UserID.String(), map[string]any{
		"user_id":      p.UserID,
		"complete":     updated.Complete(),
		"was_complete": wasComplete,
		"updated_at":   updated.UpdatedAt,
	})
	return updated, nil
}

// DeleteAccount deactivates the caller's account and revokes all of their sessions.
func (s *Service) DeleteAccount(ctx context.Context, p Principal) error {
	return s.deactivate(ctx, p.UserID, "self")
}

func (s *Service) deactivate(ctx context.Context, userID uuid.UUID, actor string) error {
	now := s.nowFn()
	if err := s.users.Deactivate(ctx, userID, now); err != nil {
		return err
	}
	if err := s.revokeUserSessions(ctx, userID, now); err != nil {
		return err
	}
	s.invalidateFlow(ctx, userID)
	s.emit(ctx, eventTypeUserDeactivated, userID.String(), map[string]any{
		"user_id":        userID,
		"deactivated_by": actor,
		"deactivated_at": now,
	})
	return nil
}
