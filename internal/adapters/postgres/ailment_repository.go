package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type ailmentRepository struct {
	db *gorm.DB
}

func (r *ailmentRepository) Create(ctx context.Context, ailment domain.Ailment) error {
	rec := toAilmentModel(ailment)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ailmentRepository) Update(ctx context.Context, ailment domain.Ailment) error {
	rec := toAilmentModel(ailment)
	res := r.db.WithContext(ctx).
		Model(&ailmentModel{}).
		Where("ailment_id = ?", ailment.AilmentID).
		Updates(map[string]any{
			"name":             rec.Name,
			"name_key":         rec.NameKey,
			"description":      rec.Description,
			"category":         rec.Category,
			"symptoms":         rec.Symptoms,
			"related_remedies": rec.RelatedRemedies,
			"related_ailments": rec.RelatedAilments,
			"updated_at":       rec.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the ailment and, with it, its remedies and their reviews.
func (r *ailmentRepository) Delete(ctx context.Context, ailmentID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		remedyIDs := tx.Model(&remedyModel{}).Select("remedy_id").Where("ailment_id = ?", ailmentID)
		if err := tx.Where("remedy_id IN (?)", remedyIDs).Delete(&reviewModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("remedy_id IN (?)", remedyIDs).Delete(&savedRemedyModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ailment_id = ?", ailmentID).Delete(&remedyModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("ailment_id = ?", ailmentID).Delete(&ailmentModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *ailmentRepository) GetByID(ctx context.Context, ailmentID uuid.UUID) (domain.Ailment, error) {
	var rec ailmentModel
	if err := r.db.WithContext(ctx).Where("ailment_id = ?", ailmentID).Take(&rec).Error; err != nil {
		return domain.Ailment{}, notFound(err)
	}
	return toDomainAilment(rec), nil
}

func (r *ailmentRepository) List(ctx context.Context, filter ports.AilmentFilter, page ports.Page) ([]domain.Ailment, int64, error) {
	query := r.db.WithContext(ctx).Model(&ailmentModel{})
	if filter.Category != "" {
		query = query.Where("category = ?", string(filter.Category))
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("(name_key"+likeClause+" OR LOWER(description)"+likeClause+" OR LOWER(symptoms)"+likeClause+")", pattern, pattern, pattern)
	}
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []ailmentModel
	if err := query.Order("name_key ASC").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Ailment, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAilment(row))
	}
	return out, total, nil
}
