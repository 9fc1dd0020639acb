package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type reviewRepository struct {
	db *gorm.DB
}

func (r *reviewRepository) Create(ctx context.Context, review domain.Review) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := reviewModel{
			ReviewID:  review.ReviewID,
			RemedyID:  review.RemedyID,
			UserID:    review.UserID,
			Rating:    review.Rating,
			Comment:   review.Comment,
			Status:    string(review.Status),
			FlagCount: review.FlagCount,
			CreatedAt: review.CreatedAt,
			UpdatedAt: review.UpdatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return refreshRating(tx, review.RemedyID)
	})
}

func (r *reviewRepository) GetByID(ctx context.Context, reviewID uuid.UUID) (domain.Review, error) {
	var rec reviewModel
	if err := r.db.WithContext(ctx).Where("review_id = ?", reviewID).Take(&rec).Error; err != nil {
		return domain.Review{}, notFound(err)
	}
	return toDomainReview(rec), nil
}

// ListByRemedy returns the reviews readers can see; hidden reviews are left out.
func (r *reviewRepository) ListByRemedy(ctx context.Context, remedyID uuid.UUID, page ports.Page) ([]domain.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&reviewModel{}).
		Where("remedy_id = ?", remedyID).
		Where("status <> ?", string(domain.ReviewHidden))
	return listReviews(query, "created_at DESC", page)
}

func (r *reviewRepository) ListFlagged(ctx context.Context, page ports.Page) ([]domain.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&reviewModel{}).
		Where("status = ?", string(domain.ReviewFlagged))
	return listReviews(query, "flag_count DESC, updated_at ASC", page)
}

func (r *reviewRepository) Flag(ctx context.Context, reviewID uuid.UUID, at time.Time) (domain.Review, error) {
	res := r.db.WithContext(ctx).
		Model(&reviewModel{}).
		Where("review_id = ?", reviewID).
		Where("status <> ?", string(domain.ReviewHidden)).
		Updates(map[string]any{
			"flag_count": gorm.Expr("flag_count + 1"),
			"status":     string(domain.ReviewFlagged),
			"updated_at": at,
		})
	if res.Error != nil {
		return domain.Review{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Review{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, reviewID)
}

func listReviews(query *gorm.DB, order string, page ports.Page) ([]domain.Review, int64, error) {
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []reviewModel
	if err := query.Order(order).Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainReview(row))
	}
	return out, total, nil
}

// refreshRating recomputes the remedy aggregate from the reviews that are not hidden.
func refreshRating(tx *gorm.DB, remedyID uuid.UUID) error {
	var agg struct {
		Average float64
		Count   int
	}
	if err := tx.Model(&reviewModel{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("remedy_id = ?", remedyID).
		Where("status <> ?", string(domain.ReviewHidden)).
		Scan(&agg).Error; err != nil {
		return err
	}
	return tx.Model(&remedyModel{}).
		Where("remedy_id = ?", remedyID).
		Updates(map[string]any{
			"rating_average": agg.Average,
			"rating_count":   agg.Count,
		}).Error
}
