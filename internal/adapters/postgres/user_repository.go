package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// CreateWithOutboxTx inserts the user, its consent record and the registration event atomically.
func (r *userRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateUserTxParams, outboxEvent ports.OutboxEvent) (domain.User, error) {
	var result domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := userModel{
			UserID:        uuid.New(),
			Email:         params.Email,
			DisplayName:   params.DisplayName,
			PasswordHash:  params.PasswordHash,
			Role:          string(params.Role),
			EmailVerified: false,
			IsActive:      true,
			ReferredBy:    nullableString(params.ReferredBy),
			CreatedAt:     params.RegisteredAtUTC,
			UpdatedAt:     params.RegisteredAtUTC,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		consent := params.Consent
		consent.UserID = rec.UserID
		if consent.UpdatedAt.IsZero() {
			consent.UpdatedAt = params.RegisteredAtUTC
		}
		consentRow := toConsentModel(consent)
		if err := tx.Create(&consentRow).Error; err != nil {
			return err
		}
		if history := toConsentHistoryModels(rec.UserID, consent.History); len(history) > 0 {
			if err := tx.Create(&history).Error; err != nil {
				return err
			}
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["user_id"] = rec.UserID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}
		outbox := outboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: rec.UserID.String(),
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainUser(rec)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return result, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		return domain.User{}, notFound(err)
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.User{}, notFound(err)
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) List(ctx context.Context, filter ports.UserFilter, page ports.Page) ([]domain.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&userModel{})
	if filter.Role != "" {
		query = query.Where("role = ?", string(filter.Role))
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("(LOWER(email)"+likeClause+" OR LOWER(display_name)"+likeClause+")", pattern, pattern)
	}
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []userModel
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainUser(row))
	}
	return out, total, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"password_hash": passwordHash,
		"updated_at":    updatedAt,
	})
}

func (r *userRepository) SetEmailVerified(ctx context.Context, userID uuid.UUID, updatedAt time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"email_verified": true,
		"updated_at":     updatedAt,
	})
}

func (r *userRepository) SetRole(ctx context.Context, userID uuid.UUID, role domain.Role, updatedAt time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"role":       string(role),
		"updated_at": updatedAt,
	})
}

func (r *userRepository) Deactivate(ctx context.Context, userID uuid.UUID, deactivatedAt time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"is_active":  false,
		"deleted_at": deactivatedAt,
		"updated_at": deactivatedAt,
	})
}

func (r *userRepository) CountByRole(ctx context.Context) (map[domain.Role]int64, error) {
	var rows []struct {
		Role  string
		Count int64
	}
	if err := r.db.WithContext(ctx).Model(&userModel{}).
		Select("role, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("role").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[domain.Role]int64{
		domain.RoleUser:      0,
		domain.RoleWriter:    0,
		domain.RoleModerator: 0,
		domain.RoleAdmin:     0,
	}
	for _, row := range rows {
		out[domain.Role(row.Role)] = row.Count
	}
	return out, nil
}

func (r *userRepository) updateOne(ctx context.Context, userID uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
