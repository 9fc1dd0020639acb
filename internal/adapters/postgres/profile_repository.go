package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type profileRepository struct {
	db *gorm.DB
}

func (r *profileRepository) Get(ctx context.Context, userID uuid.UUID) (domain.HealthProfile, error) {
	var rec healthProfileModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.HealthProfile{
				UserID:             userID,
				Conditions:         []string{},
				Allergies:          []string{},
				Medications:        []string{},
				DietaryPreferences: []string{},
			}, nil
		}
		return domain.HealthProfile{}, err
	}
	return toDomainProfile(rec), nil
}

func (r *profileRepository) Upsert(ctx context.Context, profile domain.HealthProfile) error {
	rec := toProfileModel(profile)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}
