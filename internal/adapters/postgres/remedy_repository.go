package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type remedyRepository struct {
	db *gorm.DB
}

var remedyOrder = map[string]string{
	"":       "created_at DESC",
	"newest": "created_at DESC",
	"oldest": "created_at ASC",
	"rating": "rating_average DESC, rating_count DESC, created_at DESC",
	"name":   "LOWER(name) ASC",
}

func (r *remedyRepository) Create(ctx context.Context, remedy domain.Remedy) error {
	rec := toRemedyModel(remedy)
	return r.db.WithContext(ctx).Create(&rec).Error
}

// Update writes the editable fields. Rating aggregates are owned by the review repository.
func (r *remedyRepository) Update(ctx context.Context, remedy domain.Remedy) error {
	rec := toRemedyModel(remedy)
	res := r.db.WithContext(ctx).
		Model(&remedyModel{}).
		Where("remedy_id = ?", remedy.RemedyID).
		Updates(map[string]any{
			"ailment_id":       rec.AilmentID,
			"type":             rec.Type,
			"status":           rec.Status,
			"private":          rec.Private,
			"name":             rec.Name,
			"description":      rec.Description,
			"ingredients":      rec.Ingredients,
			"instructions":     rec.Instructions,
			"precautions":      rec.Precautions,
			"disclaimer":       rec.Disclaimer,
			"rejection_reason": rec.RejectionReason,
			"updated_at":       rec.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *remedyRepository) Delete(ctx context.Context, remedyID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("remedy_id = ?", remedyID).Delete(&reviewModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("remedy_id = ?", remedyID).Delete(&savedRemedyModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("remedy_id = ?", remedyID).Delete(&remedyModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *remedyRepository) GetByID(ctx context.Context, remedyID uuid.UUID) (domain.Remedy, error) {
	var rec remedyModel
	if err := r.db.WithContext(ctx).Where("remedy_id = ?", remedyID).Take(&rec).Error; err != nil {
		return domain.Remedy{}, notFound(err)
	}
	return toDomainRemedy(rec), nil
}

func (r *remedyRepository) List(ctx context.Context, filter ports.RemedyFilter, page ports.Page) ([]domain.Remedy, int64, error) {
	query := r.db.WithContext(ctx).Model(&remedyModel{})
	public := r.db.Where("private = ?", false)
	if filter.Status != "" {
		public = public.Where("status = ?", string(filter.Status))
	}
	if filter.Viewer != uuid.Nil {
		public = public.Or("author_id = ?", filter.Viewer)
	}
	query = query.Where(public)
	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if filter.AilmentID != uuid.Nil {
		query = query.Where("ailment_id = ?", filter.AilmentID)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("(LOWER(name)"+likeClause+" OR LOWER(description)"+likeClause+")", pattern, pattern)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	order, ok := remedyOrder[filter.Sort]
	if !ok {
		order = remedyOrder[""]
	}
	var rows []remedyModel
	if err := query.Order(order).Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Remedy, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRemedy(row))
	}
	return out, total, nil
}

func (r *remedyRepository) CountByStatus(ctx context.Context) (map[domain.RemedyStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&remedyModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[domain.RemedyStatus]int64{
		domain.RemedyPending:  0,
		domain.RemedyApproved: 0,
		domain.RemedyRejected: 0,
	}
	for _, row := range rows {
		out[domain.RemedyStatus(row.Status)] = row.Count
	}
	return out, nil
}

// Save is idempotent: saving an already saved remedy is a no-op.
func (r *remedyRepository) Save(ctx context.Context, userID, remedyID uuid.UUID, at time.Time) error {
	rec := savedRemedyModel{UserID: userID, RemedyID: remedyID, CreatedAt: at}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

func (r *remedyRepository) Unsave(ctx context.Context, userID, remedyID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND remedy_id = ?", userID, remedyID).
		Delete(&savedRemedyModel{}).Error
}

// ListSaved returns the user's saved remedies that are still readable by them, most recent first.
func (r *remedyRepository) ListSaved(ctx context.Context, userID uuid.UUID, page ports.Page) ([]domain.Remedy, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&remedyModel{}).
		Joins("JOIN saved_remedies ON saved_remedies.remedy_id = remedies.remedy_id").
		Where("saved_remedies.user_id = ?", userID).
		Where("(remedies.author_id = ? OR (remedies.status = ? AND remedies.private = ?))", userID, string(domain.RemedyApproved), false).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []remedyModel
	if err := query.Select("remedies.*").
		Order("saved_remedies.created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Remedy, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRemedy(row))
	}
	return out, total, nil
}
