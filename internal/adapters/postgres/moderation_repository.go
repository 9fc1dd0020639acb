package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type moderationRepository struct {
	db *gorm.DB
}

func (r *moderationRepository) DecideRemedy(ctx context.Context, remedyID uuid.UUID, next domain.RemedyStatus, reason string, outcome ports.ModerationOutcome) (domain.Remedy, error) {
	var rec remedyModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&remedyModel{}).
			Where("remedy_id = ? AND status = ? AND private = ?", remedyID, string(domain.RemedyPending), false).
			Updates(map[string]any{
				"status":           string(next),
				"rejection_reason": reason,
				"updated_at":       outcome.Decision.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("remedy_id = ?", remedyID).Take(&rec).Error; err != nil {
				return notFound(err)
			}
			if rec.Private {
				return domain.ErrNotFound
			}
			return fmt.Errorf("%w: remedy is already %s", domain.ErrConflict, rec.Status)
		}
		if err := logDecisionTx(tx, outcome); err != nil {
			return err
		}
		return tx.Where("remedy_id = ?", remedyID).Take(&rec).Error
	})
	if err != nil {
		return domain.Remedy{}, err
	}
	return toDomainRemedy(rec), nil
}

func (r *moderationRepository) DecideReview(ctx context.Context, reviewID uuid.UUID, next domain.ReviewStatus, outcome ports.ModerationOutcome) (domain.Review, error) {
	var rec reviewModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_id = ?", reviewID).Take(&rec).Error; err != nil {
			return notFound(err)
		}
		values := map[string]any{"status": string(next), "updated_at": outcome.Decision.CreatedAt}
		if next == domain.ReviewVisible {
			values["flag_count"] = 0
		}
		res := tx.Model(&reviewModel{}).
			Where("review_id = ? AND status <> ?", reviewID, string(next)).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: review is already %s", domain.ErrConflict, next)
		}
		if err := refreshRating(tx, rec.RemedyID); err != nil {
			return err
		}
		if err := logDecisionTx(tx, outcome); err != nil {
			return err
		}
		return tx.Where("review_id = ?", reviewID).Take(&rec).Error
	})
	if err != nil {
		return domain.Review{}, err
	}
	return toDomainReview(rec), nil
}

func logDecisionTx(tx *gorm.DB, outcome ports.ModerationOutcome) error {
	decision := outcome.Decision
	rec := moderationDecisionModel{
		DecisionID:  decision.DecisionID,
		ModeratorID: decision.ModeratorID,
		TargetKind:  decision.TargetKind,
		TargetID:    decision.TargetID,
		Action:      decision.Action,
		Reason:      decision.Reason,
		CreatedAt:   decision.CreatedAt,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return err
	}
	return enqueueTx(tx, outcome.OutboxEvent)
}

func (r *moderationRepository) List(ctx context.Context, page ports.Page) ([]domain.ModerationDecision, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&moderationDecisionModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []moderationDecisionModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.ModerationDecision, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDecision(row))
	}
	return out, total, nil
}
