package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

func (s *Service) ListUsers(ctx context.Context, q UserQuery) (UserList, error) {
	filter := ports.UserFilter{Search: strings.TrimSpace(q.Search)}
	if raw := strings.TrimSpace(q.Role); raw != "" {
		role, err := domain.ParseRole(strings.ToLower(raw))
		if err != nil {
			return UserList{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "role", Message: "unknown role"}}}
		}
		filter.Role = role
	}
	page, window := normalizePage(q.PageQuery)
	users, total, err := s.users.List(ctx, filter, window)
	if err != nil {
		return UserList{}, err
	}
	items := make([]UserView, 0, len(users))
	for _, u := range users {
		items = append(items, toUserView(u))
	}
	return UserList{Items: items, Page: pageMeta(page, window, total)}, nil
}

// SetUserRole changes a user's role. Admins cannot change their own role.
func (s *Service) SetUserRole(ctx context.Context, actor uuid.UUID, userID uuid.UUID, rawRole string) (UserView, error) {
	role, err := domain.ParseRole(strings.ToLower(strings.TrimSpace(rawRole)))
	if err != nil {
		return UserView{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "role", Message: "must be user, writer, moderator, or admin"}}}
	}
	if actor == userID {
		return UserView{}, fmt.Errorf("%w: admins cannot change their own role", domain.ErrForbidden)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserView{}, err
	}
	if user.Role == role {
		return toUserView(user), nil
	}
	now := s.nowFn()
	if err := s.users.SetRole(ctx, userID, role, now); err != nil {
		return UserView{}, err
	}
	previous := user.Role
	user.Role = role
	user.UpdatedAt = now
	s.emit(ctx, eventTypeUserRoleChanged, userID.String(), map[string]any{
		"user_id":       userID,
		"previous_role": previous,
		"role":          role,
		"changed_by":    actor,
	})
	return toUserView(user), nil
}

// DeactivateUser closes another user's account. Admins cannot deactivate themselves here.
func (s *Service) DeactivateUser(ctx context.Context, actor uuid.UUID, userID uuid.UUID) error {
	if actor == userID {
		return fmt.Errorf("%w: admins cannot deactivate themselves", domain.ErrForbidden)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}
	return s.deactivate(ctx, userID, actor.String())
}

func (s *Service) AdminStats(ctx context.Context) (AdminStats, error) {
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	byStatus, err := s.remedies.CountByStatus(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	active, err := s.billing.CountActiveSubscriptions(ctx, s.nowFn())
	if err != nil {
		return AdminStats{}, err
	}
	revenue, err := s.billing.SumSucceededPayments(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	return AdminStats{
		UsersByRole:         byRole,
		RemediesByStatus:    byStatus,
		ActiveSubscriptions: active,
		RevenueCents:        revenue,
	}, nil
}

// SetRoleByEmail is the operator path used by the CLI to bootstrap the first admin.
func (s *Service) SetRoleByEmail(ctx context.Context, email, rawRole string) (UserView, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return UserView{}, err
	}
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return UserView{}, err
	}
	return s.SetUserRole(ctx, uuid.Nil, user.UserID, rawRole)
}
