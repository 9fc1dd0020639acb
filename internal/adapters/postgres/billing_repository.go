package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type billingRepository struct {
	db *gorm.DB
}

func (r *billingRepository) CreatePayment(ctx context.Context, payment domain.Payment) error {
	rec := paymentModel{
		PaymentID:      payment.PaymentID,
		UserID:         payment.UserID,
		PlanID:         payment.PlanID,
		ProviderRef:    payment.ProviderRef,
		AmountCents:    payment.AmountCents,
		Currency:       payment.Currency,
		Status:         string(payment.Status),
		ReferralCode:   payment.ReferralCode,
		FailureMessage: payment.FailureMessage,
		CreatedAt:      payment.CreatedAt,
		UpdatedAt:      payment.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *billingRepository) GetPaymentByProviderRef(ctx context.Context, providerRef string) (domain.Payment, error) {
	var rec paymentModel
	if err := r.db.WithContext(ctx).Where("provider_ref = ?", providerRef).Take(&rec).Error; err != nil {
		return domain.Payment{}, notFound(err)
	}
	return toDomainPayment(rec), nil
}

// MarkPaymentFailed only moves pending payments; a succeeded payment is never downgraded.
func (r *billingRepository) MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, message string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&paymentModel{}).
		Where("payment_id = ? AND status = ?", paymentID, string(domain.PaymentPending)).
		Updates(map[string]any{
			"status":          string(domain.PaymentFailed),
			"failure_message": message,
			"updated_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&paymentModel{}).Where("payment_id = ?", paymentID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *billingRepository) ActivateTx(ctx context.Context, params ports.ActivationParams) (ports.ActivationResult, error) {
	var result ports.ActivationResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pay paymentModel
		lookup := tx.Where("payment_id = ?", params.PaymentID)
		if tx.Dialector.Name() == "postgres" {
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := lookup.Take(&pay).Error; err != nil {
			return notFound(err)
		}

		switch domain.PaymentStatus(pay.Status) {
		case domain.PaymentFailed:
			return domain.ErrPaymentFailed
		case domain.PaymentSucceeded:
			return loadActivation(tx, pay, &result)
		}

		var existing *domain.Subscription
		var subRec subscriptionModel
		err := tx.Where("user_id = ?", pay.UserID).Take(&subRec).Error
		switch {
		case err == nil:
			sub := toDomainSubscription(subRec)
			existing = &sub
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		now := params.ActivatedAt
		start, end := domain.NextPeriod(existing, params.Plan, now)
		if existing == nil {
			subRec = subscriptionModel{
				SubscriptionID: uuid.New(),
				UserID:         pay.UserID,
				CreatedAt:      now,
			}
		}
		subRec.PlanID = params.Plan.PlanID
		subRec.Status = string(domain.SubscriptionActive)
		subRec.CancelAtPeriodEnd = false
		if existing == nil || !existing.Entitled(now) {
			subRec.CurrentPeriodStart = start
		}
		subRec.CurrentPeriodEnd = end
		subRec.UpdatedAt = now
		if err := tx.Save(&subRec).Error; err != nil {
			return err
		}

		if err := tx.Model(&paymentModel{}).
			Where("payment_id = ?", pay.PaymentID).
			Updates(map[string]any{
				"status":          string(domain.PaymentSucceeded),
				"failure_message": "",
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}
		pay.Status = string(domain.PaymentSucceeded)
		pay.UpdatedAt = now

		receipt := receiptModel{
			ReceiptID:      uuid.New(),
			ReceiptNumber:  domain.ReceiptNumber(now, params.ReceiptSuffix),
			UserID:         pay.UserID,
			PaymentID:      pay.PaymentID,
			SubscriptionID: subRec.SubscriptionID,
			PlanID:         params.Plan.PlanID,
			PlanName:       params.Plan.Name,
			AmountCents:    pay.AmountCents,
			Currency:       pay.Currency,
			PeriodStart:    start,
			PeriodEnd:      end,
			IssuedAt:       now,
		}
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}

		event := params.OutboxEvent
		if event.PartitionKey == "" {
			event.PartitionKey = pay.UserID.String()
		}
		if err := enqueueTx(tx, event); err != nil {
			return err
		}

		credited := false
		if params.Referral != nil {
			if credited, err = creditConversionTx(tx, *params.Referral, now); err != nil {
				return err
			}
		}

		result = ports.ActivationResult{
			Subscription: toDomainSubscription(subRec),
			Receipt:      toDomainReceipt(receipt),
			Payment:      toDomainPayment(pay),
			Created:      true,
			Credited:     credited,
		}
		return nil
	})
	if err != nil {
		return ports.ActivationResult{}, err
	}
	return result, nil
}

func loadActivation(tx *gorm.DB, pay paymentModel, out *ports.ActivationResult) error {
	var receipt receiptModel
	if err := tx.Where("payment_id = ?", pay.PaymentID).Take(&receipt).Error; err != nil {
		return notFound(err)
	}
	var sub subscriptionModel
	if err := tx.Where("subscription_id = ?", receipt.SubscriptionID).Take(&sub).Error; err != nil {
		return notFound(err)
	}
	*out = ports.ActivationResult{
		Subscription: toDomainSubscription(sub),
		Receipt:      toDomainReceipt(receipt),
		Payment:      toDomainPayment(pay),
	}
	return nil
}

func (r *billingRepository) GetSubscription(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	var rec subscriptionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.Subscription{}, notFound(err)
	}
	return toDomainSubscription(rec), nil
}

func (r *billingRepository) UpdateSubscription(ctx context.Context, sub domain.Subscription) error {
	res := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("subscription_id = ?", sub.SubscriptionID).
		Updates(map[string]any{
			"plan_id":              sub.PlanID,
			"status":               string(sub.Status),
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"updated_at":           sub.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *billingRepository) ListReceipts(ctx context.Context, userID uuid.UUID, page ports.Page) ([]domain.Receipt, int64, error) {
	query := r.db.WithContext(ctx).Model(&receiptModel{}).
		Where("user_id = ?", userID).
		Session(&gorm.Session{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []receiptModel
	if err := query.Order("issued_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainReceipt(row))
	}
	return out, total, nil
}

func (r *billingRepository) GetReceipt(ctx context.Context, receiptID uuid.UUID) (domain.Receipt, error) {
	var rec receiptModel
	if err := r.db.WithContext(ctx).Where("receipt_id = ?", receiptID).Take(&rec).Error; err != nil {
		return domain.Receipt{}, notFound(err)
	}
	return toDomainReceipt(rec), nil
}

func (r *billingRepository) ListLapsedSubscriptions(ctx context.Context, now, graceCutoff time.Time, limit int) ([]domain.Subscription, error) {
	var rows []subscriptionModel
	if err := r.db.WithContext(ctx).
		Where(
			r.db.Where("status IN ? AND current_period_end <= ?",
				[]string{string(domain.SubscriptionActive), string(domain.SubscriptionCanceled)}, now).
				Or("status = ? AND current_period_end <= ?", string(domain.SubscriptionPastDue), graceCutoff),
		).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainSubscription(row))
	}
	return out, nil
}

// CountActiveSubscriptions counts subscriptions that still grant access at now.
func (r *billingRepository) CountActiveSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("status IN ?", []string{string(domain.SubscriptionActive), string(domain.SubscriptionCanceled)}).
		Where("current_period_end > ?", now).
		Count(&total).Error
	return total, err
}

func (r *billingRepository) SumSucceededPayments(ctx context.Context) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&paymentModel{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("status = ?", string(domain.PaymentSucceeded)).
		Scan(&sum).Error
	return sum, err
}
