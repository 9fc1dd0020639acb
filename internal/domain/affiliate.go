package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type AffiliateStatus string

const (
	AffiliatePending    AffiliateStatus = "pending"
	AffiliateActive     AffiliateStatus = "active"
	AffiliateSuspended  AffiliateStatus = "suspended"
	AffiliateTerminated AffiliateStatus = "terminated"
)

func ParseAffiliateStatus(raw string) (AffiliateStatus, error) {
	switch s := AffiliateStatus(raw); s {
	case AffiliatePending, AffiliateActive, AffiliateSuspended, AffiliateTerminated:
		return s, nil
	}
	return "", ErrInvalidInput
}

type PayoutMethod string

const (
	PayoutPayPal       PayoutMethod = "paypal"
	PayoutBankTransfer PayoutMethod = "bank_transfer"
	PayoutStripe       PayoutMethod = "stripe"
)

func ParsePayoutMethod(raw string) (PayoutMethod, error) {
	switch m := PayoutMethod(raw); m {
	case PayoutPayPal, PayoutBankTransfer, PayoutStripe:
		return m, nil
	}
	return "", ErrInvalidInput
}

type AffiliateProgram struct {
	AffiliateID      uuid.UUID       `json:"affiliate_id"`
	UserID           uuid.UUID       `json:"user_id"`
	ReferralCode     string          `json:"referral_code"`
	TotalEarnings    int64           `json:"total_earnings_cents"`
	PendingEarnings  int64           `json:"pending_earnings_cents"`
	PaidEarnings     int64           `json:"paid_earnings_cents"`
	TotalReferrals   int             `json:"total_referrals"`
	Conversions      int             `json:"conversions"`
	CommissionRate   float64         `json:"commission_rate"`
	Status           AffiliateStatus `json:"status"`
	PayoutMethod     PayoutMethod    `json:"payout_method,omitempty"`
	PaymentMethodRef string          `json:"payment_method_ref,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Commission returns the affiliate's cut of an amount, rounded to the nearest cent.
func (a AffiliateProgram) Commission(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents) * a.CommissionRate))
}
