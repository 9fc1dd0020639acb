package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type affiliateRepository struct {
	db *gorm.DB
}

func (r *affiliateRepository) Create(ctx context.Context, program domain.AffiliateProgram) error {
	rec := toAffiliateModel(program)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *affiliateRepository) GetByUser(ctx context.Context, userID uuid.UUID) (domain.AffiliateProgram, error) {
	return r.getBy(ctx, "user_id = ?", userID)
}

func (r *affiliateRepository) GetByID(ctx context.Context, affiliateID uuid.UUID) (domain.AffiliateProgram, error) {
	return r.getBy(ctx, "affiliate_id = ?", affiliateID)
}

func (r *affiliateRepository) GetByCode(ctx context.Context, code string) (domain.AffiliateProgram, error) {
	return r.getBy(ctx, "referral_code = ?", code)
}

func (r *affiliateRepository) getBy(ctx context.Context, cond string, arg any) (domain.AffiliateProgram, error) {
	var rec affiliateModel
	if err := r.db.WithContext(ctx).Where(cond, arg).Take(&rec).Error; err != nil {
		return domain.AffiliateProgram{}, notFound(err)
	}
	return toDomainAffiliate(rec), nil
}

func (r *affiliateRepository) UpdatePayout(ctx context.Context, affiliateID uuid.UUID, method domain.PayoutMethod, ref string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&affiliateModel{}).
		Where("affiliate_id = ?", affiliateID).
		Updates(map[string]any{
			"payout_method":      string(method),
			"payment_method_ref": ref,
			"updated_at":         at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *affiliateRepository) SetStatus(ctx context.Context, affiliateID uuid.UUID, status domain.AffiliateStatus, at time.Time) error {
	query := r.db.WithContext(ctx).Model(&affiliateModel{}).Where("affiliate_id = ?", affiliateID)
	if status != domain.AffiliateTerminated {
		query = query.Where("status <> ?", string(domain.AffiliateTerminated))
	}
	res := query.Updates(map[string]any{
		"status":     string(status),
		"updated_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, affiliateID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *affiliateRepository) IncrementReferrals(ctx context.Context, code string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&affiliateModel{}).
		Where("referral_code = ?", code).
		Updates(map[string]any{
			"total_referrals": gorm.Expr("total_referrals + 1"),
			"updated_at":      at,
		}).Error
}

func (r *affiliateRepository) List(ctx context.Context, status domain.AffiliateStatus, page ports.Page) ([]domain.AffiliateProgram, int64, error) {
	query := r.db.WithContext(ctx).Model(&affiliateModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	query = query.Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []affiliateModel
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.AffiliateProgram, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAffiliate(row))
	}
	return out, total, nil
}

// creditConversionTx books a conversion with column arithmetic so concurrent credits add up.
func creditConversionTx(tx *gorm.DB, credit ports.ReferralCredit, at time.Time) (bool, error) {
	res := tx.Model(&affiliateModel{}).
		Where("affiliate_id = ? AND status = ?", credit.AffiliateID, string(domain.AffiliateActive)).
		Updates(map[string]any{
			"conversions":            gorm.Expr("conversions + 1"),
			"pending_earnings_cents": gorm.Expr("pending_earnings_cents + ?", credit.CommissionCents),
			"total_earnings_cents":   gorm.Expr("total_earnings_cents + ?", credit.CommissionCents),
			"updated_at":             at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, enqueueTx(tx, credit.OutboxEvent)
}
