package application

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPrecheckEnforcesOnboarding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.register(t, "ivy@example.com")

	_, err := h.svc.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: "monthly"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, h.svc.VerifyEmail(ctx, h.verificationToken(t, p.UserID)))
	_, err = h.svc.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: "monthly"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	h.completeProfile(t, p)
	_, err = h.svc.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: "lifetime"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	pre, err := h.svc.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: "monthly"})
	require.NoError(t, err)
	assert.True(t, pre.Eligible)
	assert.Equal(t, int64(1000), pre.AmountCents)

	h.subscribe(t, p)
	_, err = h.svc.PrecheckSubscription(ctx, p, PrecheckRequest{PlanID: "monthly"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "jon@example.com")

	first, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "chk-1")
	require.NoError(t, err)
	again, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "chk-1")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, again.PaymentID)
	assert.Equal(t, first.PaymentIntentID, again.PaymentIntentID)

	_, err = h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "declined"}, "chk-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestConfirmTwiceReturnsSameReceipt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "kim@example.com")

	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "")
	require.NoError(t, err)

	first, err := h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, first.Subscription.Status)
	assert.Equal(t, int64(1000), first.Receipt.AmountCents)
	assert.Contains(t, first.Receipt.ReceiptNumber, "RML-")

	second, err := h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.NoError(t, err)
	assert.Equal(t, first.Receipt.ReceiptID, second.Receipt.ReceiptID)

	receipts, err := h.svc.ListReceipts(ctx, p, PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, receipts.Page.Total)

	other := h.onboard(t, "lee@example.com")
	_, err = h.svc.ConfirmCheckout(ctx, other, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.GetReceipt(ctx, other, first.Receipt.ReceiptID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmDeclinedPaymentFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "max@example.com")

	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "declined"}, "")
	require.NoError(t, err)
	_, err = h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	payment, err := h.repos.Billing.GetPaymentByProviderRef(ctx, checkout.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, payment.Status)

	status, err := h.svc.SubscriptionStatus(ctx, p)
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func signedWebhook(t *testing.T, h *harness, eventType, ref string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"type": eventType, "provider_ref": ref})
	require.NoError(t, err)
	return payload, h.gateway.Sign(payload)
}

func TestWebhookActivatesSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "ned@example.com")

	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "")
	require.NoError(t, err)
	h.gateway.SetStatus(checkout.PaymentIntentID, ports.IntentSucceeded)

	payload, sig := signedWebhook(t, h, "payment_intent.succeeded", checkout.PaymentIntentID)
	require.ErrorIs(t, h.svc.HandlePaymentWebhook(ctx, payload, "deadbeef"), domain.ErrUnauthorized)
	require.NoError(t, h.svc.HandlePaymentWebhook(ctx, payload, sig))
	require.NoError(t, h.svc.HandlePaymentWebhook(ctx, payload, sig))

	status, err := h.svc.SubscriptionStatus(ctx, p)
	require.NoError(t, err)
	assert.True(t, status.Active)
	receipts, err := h.svc.ListReceipts(ctx, p, PageQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, receipts.Page.Total)

	unknown, sig := signedWebhook(t, h, "payment_intent.succeeded", "pi_elsewhere")
	require.NoError(t, h.svc.HandlePaymentWebhook(ctx, unknown, sig))
}

func TestWebhookFailureMarksPaymentFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "oli@example.com")

	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "")
	require.NoError(t, err)
	payload, sig := signedWebhook(t, h, "payment_intent.payment_failed", checkout.PaymentIntentID)
	require.NoError(t, h.svc.HandlePaymentWebhook(ctx, payload, sig))

	_, err = h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
}

func TestCancelKeepsAccessUntilPeriodEndThenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "pam@example.com")
	confirmed := h.subscribe(t, p)

	view, err := h.svc.CancelSubscription(ctx, p)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.True(t, view.CancelAtPeriodEnd)
	_, err = h.svc.CancelSubscription(ctx, p)
	require.ErrorIs(t, err, domain.ErrConflict)

	h.clock.Advance(confirmed.Subscription.CurrentPeriodEnd.Sub(h.clock.Now()) + time.Minute)
	changed, err := h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	sub, err := h.repos.Billing.GetSubscription(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionExpired, sub.Status)
}

func TestExpireMovesActiveToPastDueThenExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "quin@example.com")
	confirmed := h.subscribe(t, p)

	h.clock.Advance(confirmed.Subscription.CurrentPeriodEnd.Sub(h.clock.Now()) + time.Hour)
	changed, err := h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	sub, err := h.repos.Billing.GetSubscription(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, sub.Status)

	changed, err = h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	h.clock.Advance(72 * time.Hour)
	changed, err = h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	sub, err = h.repos.Billing.GetSubscription(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionExpired, sub.Status)

	status, err := h.svc.FlowStatus(ctx, &p)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowSubscriptionRequired, status)
}

func TestAffiliateEarnsCommissionOnReferredPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	partner := h.register(t, "rae@example.com")
	_, err := h.svc.EnrollAffiliate(ctx, partner)
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.NoError(t, h.svc.VerifyEmail(ctx, h.verificationToken(t, partner.UserID)))

	program, err := h.svc.EnrollAffiliate(ctx, partner)
	require.NoError(t, err)
	assert.Equal(t, domain.AffiliatePending, program.Status)
	assert.Len(t, program.ReferralCode, 8)
	_, err = h.svc.EnrollAffiliate(ctx, partner)
	require.ErrorIs(t, err, domain.ErrConflict)

	resolved, err := h.svc.ResolveReferral(ctx, program.ReferralCode)
	require.NoError(t, err)
	assert.False(t, resolved.Valid)

	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "active")
	require.NoError(t, err)
	resolved, err = h.svc.ResolveReferral(ctx, program.ReferralCode)
	require.NoError(t, err)
	assert.True(t, resolved.Valid)

	resp, err := h.svc.Register(ctx, RegisterRequest{
		Email:           "sam@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		DisplayName:     "Sam",
		ReferralCode:    program.ReferralCode,
	}, "")
	require.NoError(t, err)
	buyer := Principal{UserID: resp.UserID, Email: resp.Email, Role: domain.RoleUser}
	require.NoError(t, h.svc.VerifyEmail(ctx, h.verificationToken(t, buyer.UserID)))
	h.completeProfile(t, buyer)
	h.subscribe(t, buyer)

	credited, err := h.svc.GetAffiliate(ctx, partner)
	require.NoError(t, err)
	assert.Equal(t, 1, credited.TotalReferrals)
	assert.Equal(t, 1, credited.Conversions)
	assert.Equal(t, int64(200), credited.TotalEarnings)
	assert.Equal(t, int64(200), credited.PendingEarnings)

	list, err := h.svc.ListAffiliates(ctx, "active", PageQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
}

func TestSelfReferralIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.onboard(t, "tia@example.com")

	program, err := h.svc.EnrollAffiliate(ctx, p)
	require.NoError(t, err)
	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "active")
	require.NoError(t, err)

	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly", ReferralCode: program.ReferralCode}, "")
	require.NoError(t, err)
	_, err = h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.NoError(t, err)

	after, err := h.svc.GetAffiliate(ctx, p)
	require.NoError(t, err)
	assert.Zero(t, after.Conversions)
	assert.Zero(t, after.TotalEarnings)
}

func TestCheckoutRetriesWithSameKeyAfterGatewayFailure(t *testing.T) {
	h := newHarness(t, withFlakyPayments(1))
	ctx := context.Background()
	p := h.onboard(t, "uma@example.com")

	_, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "chk-retry")
	require.ErrorIs(t, err, domain.ErrPaymentFailed)

	retried, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "chk-retry")
	require.NoError(t, err)
	assert.NotEmpty(t, retried.PaymentIntentID)

	replayed, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, "chk-retry")
	require.NoError(t, err)
	assert.Equal(t, retried.PaymentID, replayed.PaymentID)
}

func TestConcurrentReferredPaymentsAllCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	partner := h.register(t, "vic@example.com")
	require.NoError(t, h.svc.VerifyEmail(ctx, h.verificationToken(t, partner.UserID)))
	program, err := h.svc.EnrollAffiliate(ctx, partner)
	require.NoError(t, err)
	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "active")
	require.NoError(t, err)

	const buyers = 8
	type pending struct {
		principal Principal
		intent    string
	}
	checkouts := make([]pending, 0, buyers)
	for i := 0; i < buyers; i++ {
		p := h.onboard(t, fmt.Sprintf("buyer%d@example.com", i))
		checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly", ReferralCode: program.ReferralCode}, uuid.NewString())
		require.NoError(t, err)
		checkouts = append(checkouts, pending{principal: p, intent: checkout.PaymentIntentID})
	}

	var g errgroup.Group
	for _, c := range checkouts {
		g.Go(func() error {
			var err error
			// sqlite reports lock contention as an error; confirmation is safe to repeat.
			for attempt := 0; attempt < 20; attempt++ {
				if _, err = h.svc.ConfirmCheckout(ctx, c.principal, ConfirmRequest{PaymentIntentID: c.intent}); err == nil {
					return nil
				}
				time.Sleep(10 * time.Millisecond)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	credited, err := h.svc.GetAffiliate(ctx, partner)
	require.NoError(t, err)
	assert.Equal(t, buyers, credited.Conversions)
	assert.Equal(t, int64(buyers*200), credited.PendingEarnings)
	assert.Equal(t, int64(buyers*200), credited.TotalEarnings)
	assert.Equal(t, buyers, h.eventCount(t, eventTypeAffiliateConversion))
}

func TestPayoutUpdateKeepsEarnings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	partner := h.register(t, "wes@example.com")
	require.NoError(t, h.svc.VerifyEmail(ctx, h.verificationToken(t, partner.UserID)))
	program, err := h.svc.EnrollAffiliate(ctx, partner)
	require.NoError(t, err)
	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "active")
	require.NoError(t, err)

	buyer := h.onboard(t, "xan@example.com")
	checkout, err := h.svc.Checkout(ctx, buyer, CheckoutRequest{PlanID: "monthly", ReferralCode: program.ReferralCode}, "")
	require.NoError(t, err)
	_, err = h.svc.ConfirmCheckout(ctx, buyer, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.NoError(t, err)

	updated, err := h.svc.UpdatePayout(ctx, partner, PayoutRequest{PayoutMethod: "paypal", PaymentMethodRef: "wes@paypal.example"})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPayPal, updated.PayoutMethod)
	assert.Equal(t, 1, updated.Conversions)
	assert.Equal(t, int64(200), updated.PendingEarnings)

	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "terminated")
	require.NoError(t, err)
	_, err = h.svc.SetAffiliateStatus(ctx, program.AffiliateID, "active")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestExpirySweepReachesRowsBehindPastDueBacklog(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.ExpiryBatchSize = 2
	ctx := context.Background()

	subs := make([]domain.Subscription, 0, 4)
	for i := 0; i < 4; i++ {
		p := h.onboard(t, fmt.Sprintf("sweep%d@example.com", i))
		subs = append(subs, h.subscribe(t, p).Subscription)
	}
	now := h.clock.Now()
	for i, sub := range subs[:3] {
		sub.Status = domain.SubscriptionPastDue
		sub.CurrentPeriodEnd = now.Add(-time.Hour - time.Duration(i)*time.Minute)
		require.NoError(t, h.repos.Billing.UpdateSubscription(ctx, sub))
	}
	canceled := subs[3]
	canceled.Status = domain.SubscriptionCanceled
	canceled.CurrentPeriodEnd = now.Add(-30 * time.Minute)
	require.NoError(t, h.repos.Billing.UpdateSubscription(ctx, canceled))

	changed, err := h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := h.repos.Billing.GetSubscription(ctx, canceled.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionExpired, got.Status)
	for _, sub := range subs[:3] {
		got, err := h.repos.Billing.GetSubscription(ctx, sub.UserID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionPastDue, got.Status)
	}

	h.clock.Advance(72 * time.Hour)
	changed, err = h.svc.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
}
