package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type consentRepository struct {
	db *gorm.DB
}

func (r *consentRepository) Get(ctx context.Context, userID uuid.UUID) (domain.ComplianceConsent, error) {
	var rec consentModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.ComplianceConsent{}, notFound(err)
	}
	var history []consentHistoryModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at ASC").
		Find(&history).Error; err != nil {
		return domain.ComplianceConsent{}, err
	}
	return toDomainConsent(rec, history), nil
}

// Update rewrites the current flags and inserts the new history rows. History rows are never updated.
func (r *consentRepository) Update(ctx context.Context, consent domain.ComplianceConsent, appended []domain.ConsentEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := toConsentModel(consent)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).Create(&rec).Error; err != nil {
			return err
		}
		rows := toConsentHistoryModels(consent.UserID, appended)
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
