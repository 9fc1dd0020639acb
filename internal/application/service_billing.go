package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const (
	webhookPaymentSucceeded = "payment_intent.succeeded"
	webhookPaymentFailed    = "payment_intent.payment_failed"
	expirySweepBatch        = 500
)

// SubscriptionStatus is the second lookup the client combines into a flow status.
func (s *Service) SubscriptionStatus(ctx context.Context, p Principal) (SubscriptionStatusView, error) {
	sub, err := s.billing.GetSubscription(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SubscriptionStatusView{}, nil
		}
		return SubscriptionStatusView{}, err
	}
	view := SubscriptionStatusView{
		Active:            sub.Entitled(s.nowFn()),
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	end := sub.CurrentPeriodEnd
	view.CurrentPeriodEnd = &end
	if plan, ok := s.plans[sub.PlanID]; ok {
		view.Plan = &plan
	}
	return view, nil
}

// PrecheckSubscription verifies the caller may buy planID: verified email, complete profile,
// and no running subscription.
func (s *Service) PrecheckSubscription(ctx context.Context, p Principal, req PrecheckRequest) (PrecheckResponse, error) {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return PrecheckResponse{}, err
	}
	if !user.EmailVerified {
		return PrecheckResponse{}, fmt.Errorf("%w: email must be verified before subscribing", domain.ErrForbidden)
	}
	profile, err := s.profiles.Get(ctx, p.UserID)
	if err != nil {
		return PrecheckResponse{}, err
	}
	if !profile.Complete() {
		return PrecheckResponse{}, fmt.Errorf("%w: health profile must be completed before subscribing", domain.ErrForbidden)
	}
	sub, err := s.billing.GetSubscription(ctx, p.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return PrecheckResponse{}, err
	}
	if err == nil && sub.Status == domain.SubscriptionActive && sub.Entitled(s.nowFn()) {
		return PrecheckResponse{}, fmt.Errorf("%w: subscription already active", domain.ErrConflict)
	}
	plan, ok := s.plans[strings.TrimSpace(req.PlanID)]
	if !ok {
		return PrecheckResponse{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "plan_id", Message: "unknown plan"}}}
	}
	return PrecheckResponse{PlanID: plan.PlanID, AmountCents: plan.AmountCents, Currency: plan.Currency, Eligible: true}, nil
}

// Checkout creates a payment intent for planID and records the pending payment.
func (s *Service) Checkout(ctx context.Context, p Principal, req CheckoutRequest, idempotencyKey string) (CheckoutResponse, error) {
	requestHash := hashRequest(struct {
		UserID uuid.UUID
		Req    CheckoutRequest
	}{p.UserID, req})
	var replay CheckoutResponse
	if ok, err := s.replayIdempotent(ctx, idempotencyKey, requestHash, &replay); err != nil {
		return CheckoutResponse{}, err
	} else if ok {
		return replay, nil
	}

	pre, err := s.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: req.PlanID})
	if err != nil {
		s.metrics.Checkout("rejected")
		return CheckoutResponse{}, err
	}
	plan := s.plans[pre.PlanID]
	referral := s.validReferralCode(ctx, req.ReferralCode, p.UserID)

	if err := s.reserveIdempotent(ctx, idempotencyKey, requestHash); err != nil {
		return CheckoutResponse{}, err
	}

	paymentID := uuid.New()
	providerKey := idempotencyKey
	if providerKey == "" {
		providerKey = paymentID.String()
	}
	intent, err := s.payments.CreateIntent(ctx, ports.CreateIntentParams{
		AmountCents:   plan.AmountCents,
		Currency:      plan.Currency,
		CustomerEmail: p.Email,
		Description:   "Remlyo " + plan.Name,
		Metadata: map[string]string{
			"user_id":    p.UserID.String(),
			"plan_id":    plan.PlanID,
			"payment_id": paymentID.String(),
		},
		IdempotencyKey: "checkout-" + providerKey,
	})
	if err != nil {
		s.metrics.Checkout("gateway_error")
		s.releaseIdempotent(ctx, idempotencyKey)
		return CheckoutResponse{}, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err)
	}

	now := s.nowFn()
	if err := s.billing.CreatePayment(ctx, domain.Payment{
		PaymentID:    paymentID,
		UserID:       p.UserID,
		PlanID:       plan.PlanID,
		ProviderRef:  intent.ProviderRef,
		AmountCents:  plan.AmountCents,
		Currency:     plan.Currency,
		Status:       domain.PaymentPending,
		ReferralCode: referral,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		s.releaseIdempotent(ctx, idempotencyKey)
		return CheckoutResponse{}, err
	}
	s.metrics.Checkout("created")

	resp := CheckoutResponse{
		PaymentID:       paymentID,
		PaymentIntentID: intent.ProviderRef,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     plan.AmountCents,
		Currency:        plan.Currency,
	}
	s.completeIdempotent(ctx, idempotencyKey, 201, resp)
	return resp, nil
}

// ConfirmCheckout verifies the intent with the gateway and activates the subscription.
// Confirming an already applied payment returns the original receipt.
func (s *Service) ConfirmCheckout(ctx context.Context, p Principal, req ConfirmRequest) (ConfirmResponse, error) {
	ref := strings.TrimSpace(req.PaymentIntentID)
	if ref == "" {
		return ConfirmResponse{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "payment_intent_id", Message: "is required"}}}
	}
	payment, err := s.billing.GetPaymentByProviderRef(ctx, ref)
	if err != nil {
		return ConfirmResponse{}, err
	}
	if payment.UserID != p.UserID {
		return ConfirmResponse{}, domain.ErrNotFound
	}
	return s.applyPayment(ctx, payment)
}

func (s *Service) applyPayment(ctx context.Context, payment domain.Payment) (ConfirmResponse, error) {
	switch payment.Status {
	case domain.PaymentFailed:
		return ConfirmResponse{}, fmt.Errorf("%w: %s", domain.ErrPaymentFailed, payment.FailureMessage)
	case domain.PaymentPending:
		intent, err := s.payments.GetIntent(ctx, payment.ProviderRef)
		if err != nil {
			return ConfirmResponse{}, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		}
		switch intent.Status {
		case ports.IntentSucceeded:
		case ports.IntentCanceled, ports.IntentFailed:
			s.failPayment(ctx, payment, "payment "+intent.Status)
			return ConfirmResponse{}, fmt.Errorf("%w: payment %s", domain.ErrPaymentFailed, intent.Status)
		default:
			return ConfirmResponse{}, fmt.Errorf("%w: payment is %s", domain.ErrPaymentRequired, intent.Status)
		}
		if intent.AmountCents != payment.AmountCents || !strings.EqualFold(intent.Currency, payment.Currency) {
			s.failPayment(ctx, payment, "amount mismatch")
			return ConfirmResponse{}, fmt.Errorf("%w: amount mismatch", domain.ErrPaymentFailed)
		}
	}

	plan, ok := s.plans[payment.PlanID]
	if !ok {
		return ConfirmResponse{}, fmt.Errorf("plan %q is no longer configured", payment.PlanID)
	}
	now := s.nowFn()
	var referral *ports.ReferralCredit
	if payment.Status != domain.PaymentSucceeded {
		referral = s.referralCredit(ctx, payment, now)
	}
	result, err := s.billing.ActivateTx(ctx, ports.ActivationParams{
		PaymentID:     payment.PaymentID,
		Plan:          plan,
		ActivatedAt:   now,
		ReceiptSuffix: randomCode(6),
		OutboxEvent: newEvent(eventTypeSubscriptionActivated, payment.UserID.String(), map[string]any{
			"user_id":      payment.UserID,
			"plan_id":      plan.PlanID,
			"payment_id":   payment.PaymentID,
			"amount_cents": payment.AmountCents,
			"currency":     payment.Currency,
			"activated_at": now,
		}, now),
		Referral: referral,
	})
	if err != nil {
		return ConfirmResponse{}, err
	}
	if result.Created {
		s.metrics.Checkout("succeeded")
		s.invalidateFlow(ctx, payment.UserID)
	}
	if result.Credited {
		appLogger().InfoContext(ctx, "affiliate conversion credited",
			"operation", "confirm_checkout",
			"outcome", "success",
			"affiliate_id", referral.AffiliateID,
			"payment_id", payment.PaymentID,
			"commission_cents", referral.CommissionCents,
		)
	}
	return ConfirmResponse{Subscription: result.Subscription, Receipt: result.Receipt}, nil
}

func (s *Service) failPayment(ctx context.Context, payment domain.Payment, reason string) {
	if err := s.billing.MarkPaymentFailed(ctx, payment.PaymentID, reason, s.nowFn()); err != nil {
		appLogger().WarnContext(ctx, "failed to mark payment failed",
			"operation", "fail_payment",
			"outcome", "failure",
			"payment_id", payment.PaymentID,
			"error", err,
		)
		return
	}
	s.metrics.Checkout("failed")
	s.emit(ctx, eventTypePaymentFailed, payment.UserID.String(), map[string]any{
		"user_id":    payment.UserID,
		"payment_id": payment.PaymentID,
		"reason":     reason,
	})
}

// HandlePaymentWebhook applies a signed provider notification.
func (s *Service) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	switch event.Type {
	case webhookPaymentSucceeded, webhookPaymentFailed:
	default:
		return nil
	}
	payment, err := s.billing.GetPaymentByProviderRef(ctx, event.ProviderRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Intent created outside this service.
			return nil
		}
		return err
	}
	if event.Type == webhookPaymentFailed {
		if payment.Status == domain.PaymentPending {
			reason := event.FailureReason
			if reason == "" {
				reason = "payment failed"
			}
			s.failPayment(ctx, payment, reason)
		}
		return nil
	}
	_, err = s.applyPayment(ctx, payment)
	if errors.Is(err, domain.ErrPaymentFailed) || errors.Is(err, domain.ErrPaymentRequired) {
		return nil
	}
	return err
}

// CancelSubscription stops renewal; access continues until the paid period ends.
func (s *Service) CancelSubscription(ctx context.Context, p Principal) (SubscriptionStatusView, error) {
	sub, err := s.billing.GetSubscription(ctx, p.UserID)
	if err != nil {
		return SubscriptionStatusView{}, err
	}
	if sub.Status != domain.SubscriptionActive {
		return SubscriptionStatusView{}, fmt.Errorf("%w: subscription is not active", domain.ErrConflict)
	}
	now := s.nowFn()
	sub.Status = domain.SubscriptionCanceled
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = now
	if err := s.billing.UpdateSubscription(ctx, sub); err != nil {
		return SubscriptionStatusView{}, err
	}
	s.invalidateFlow(ctx, p.UserID)
	s.emit(ctx, eventTypeSubscriptionCanceled, p.UserID.String(), map[string]any{
		"user_id":            p.UserID,
		"subscription_id":    sub.SubscriptionID,
		"current_period_end": sub.CurrentPeriodEnd,
		"canceled_at":        now,
	})
	return s.SubscriptionStatus(ctx, p)
}

func (s *Service) ListReceipts(ctx context.Context, p Principal, q PageQuery) (ReceiptList, error) {
	page, window := normalizePage(q)
	items, total, err := s.billing.ListReceipts(ctx, p.UserID, window)
	if err != nil {
		return ReceiptList{}, err
	}
	if items == nil {
		items = []domain.Receipt{}
	}
	return ReceiptList{Items: items, Page: pageMeta(page, window, total)}, nil
}

func (s *Service) GetReceipt(ctx context.Context, p Principal, receiptID uuid.UUID) (domain.Receipt, error) {
	receipt, err := s.billing.GetReceipt(ctx, receiptID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt.UserID != p.UserID {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return receipt, nil
}

// ExpireSubscriptions moves subscriptions whose period has ended forward: canceled ones
// expire, active ones fall past due, and past-due ones expire after the grace period.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int, error) {
	now := s.nowFn()
	batch := s.cfg.ExpiryBatchSize
	if batch <= 0 {
		batch = expirySweepBatch
	}

	changed := 0
	for {
		subs, err := s.billing.ListLapsedSubscriptions(ctx, now, now.Add(-s.cfg.PastDueGrace), batch)
		if err != nil {
			return changed, err
		}
		for _, sub := range subs {
			next := domain.SubscriptionExpired
			if sub.Status == domain.SubscriptionActive {
				next = domain.SubscriptionPastDue
			}
			sub.Status = next
			sub.UpdatedAt = now
			if err := s.billing.UpdateSubscription(ctx, sub); err != nil {
				return changed, fmt.Errorf("update subscription %s: %w", sub.SubscriptionID, err)
			}
			changed++
			s.invalidateFlow(ctx, sub.UserID)
			if next == domain.SubscriptionExpired {
				s.emit(ctx, eventTypeSubscriptionExpired, sub.UserID.String(), map[string]any{
					"user_id":         sub.UserID,
					"subscription_id": sub.SubscriptionID,
					"plan_id":         sub.PlanID,
					"expired_at":      now,
				})
			}
		}
		if len(subs) < batch {
			return changed, nil
		}
	}
}
