package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	rec := sessionModel{
		SessionID:      uuid.New(),
		UserID:         params.UserID,
		IPAddress:      nullableString(params.IPAddress),
		UserAgent:      truncate(params.UserAgent, 512),
		CreatedAt:      params.LastActivityAt,
		LastActivityAt: params.LastActivityAt,
		ExpiresAt:      params.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec), nil
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	var rec sessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&rec).Error; err != nil {
		return domain.Session{}, notFound(err)
	}
	return toDomainSession(rec), nil
}

// TouchActivity is a no-op for revoked sessions.
func (r *sessionRepository) TouchActivity(ctx context.Context, sessionID uuid.UUID, touchedAt time.Time) error {
	return r.active(ctx).
		Where("session_id = ?", sessionID).
		Update("last_activity_at", touchedAt).Error
}

func (r *sessionRepository) RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	return r.active(ctx).
		Where("session_id = ?", sessionID).
		Update("revoked_at", revokedAt).Error
}

// RevokeAllByUser closes every open, unexpired session of the user and returns them.
func (r *sessionRepository) RevokeAllByUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) ([]domain.Session, error) {
	var rows []sessionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).
			Where("revoked_at IS NULL").
			Where("expires_at > ?", revokedAt).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.SessionID)
		}
		return tx.Model(&sessionModel{}).
			Where("session_id IN ?", ids).
			Where("revoked_at IS NULL").
			Update("revoked_at", revokedAt).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		row.RevokedAt = &revokedAt
		out = append(out, toDomainSession(row))
	}
	return out, nil
}

func (r *sessionRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&sessionModel{}).Where("revoked_at IS NULL")
}
