package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Plan is a purchasable subscription tier. Prices are in minor units.
type Plan struct {
	PlanID      string `json:"plan_id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	AmountCents int64  `json:"amount_cents" yaml:"amount_cents"`
	Currency    string `json:"currency" yaml:"currency"`
	Interval    string `json:"interval" yaml:"interval"`
}

// PeriodEnd returns the end of a billing period that starts at from.
func (p Plan) PeriodEnd(from time.Time) time.Time {
	if p.Interval == "year" {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

type Subscription struct {
	SubscriptionID     uuid.UUID          `json:"subscription_id"`
	UserID             uuid.UUID          `json:"user_id"`
	PlanID             string             `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Entitled reports whether the subscription grants access at now.
// A canceled subscription keeps access until its paid period ends.
func (s Subscription) Entitled(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionCanceled:
		return now.Before(s.CurrentPeriodEnd)
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

type Payment struct {
	PaymentID      uuid.UUID     `json:"payment_id"`
	UserID         uuid.UUID     `json:"user_id"`
	PlanID         string        `json:"plan_id"`
	ProviderRef    string        `json:"provider_ref"`
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	ReferralCode   string        `json:"referral_code,omitempty"`
	FailureMessage string        `json:"failure_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Receipt struct {
	ReceiptID      uuid.UUID `json:"receipt_id"`
	ReceiptNumber  string    `json:"receipt_number"`
	UserID         uuid.UUID `json:"user_id"`
	PaymentID      uuid.UUID `json:"payment_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	PlanName       string    `json:"plan_name"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	IssuedAt       time.Time `json:"issued_at"`
}

// ReceiptNumber formats a receipt number from the issue date and a random suffix.
func ReceiptNumber(issuedAt time.Time, suffix string) string {
	return fmt.Sprintf("RML-%s-%s", issuedAt.UTC().Format("20060102"), suffix)
}

// NextPeriod returns the window a newly paid plan covers. Paying while still
// entitled extends the current period instead of overlapping it.
func NextPeriod(existing *Subscription, plan Plan, now time.Time) (time.Time, time.Time) {
	start := now
	if existing != nil && existing.Entitled(now) && existing.CurrentPeriodEnd.After(now) {
		start = existing.CurrentPeriodEnd
	}
	return start, plan.PeriodEnd(start)
}
