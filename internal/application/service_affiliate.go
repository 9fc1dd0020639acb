package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const (
	referralCodeLength    = 8
	referralCodeAttempts  = 5
	defaultCommissionRate = 0.2
)

// EnrollAffiliate opens a pending affiliate program for a verified user.
func (s *Service) EnrollAffiliate(ctx context.Context, p Principal) (domain.AffiliateProgram, error) {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return domain.AffiliateProgram{}, err
	}
	if !user.EmailVerified {
		return domain.AffiliateProgram{}, fmt.Errorf("%w: email must be verified", domain.ErrForbidden)
	}
	if _, err := s.affiliates.GetByUser(ctx, p.UserID); err == nil {
		return domain.AffiliateProgram{}, fmt.Errorf("%w: already enrolled", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.AffiliateProgram{}, err
	}

	rate := s.cfg.CommissionRate
	if rate <= 0 {
		rate = defaultCommissionRate
	}
	now := s.nowFn()
	program := domain.AffiliateProgram{
		AffiliateID:    uuid.New(),
		UserID:         p.UserID,
		CommissionRate: rate,
		Status:         domain.AffiliatePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		program.ReferralCode = randomCode(referralCodeLength)
		err = s.affiliates.Create(ctx, program)
		if err == nil {
			return program, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.AffiliateProgram{}, err
		}
		// A concurrent enrollment for the same user also conflicts.
		if _, lookupErr := s.affiliates.GetByUser(ctx, p.UserID); lookupErr == nil {
			return domain.AffiliateProgram{}, fmt.Errorf("%w: already enrolled", domain.ErrConflict)
		}
	}
	return domain.AffiliateProgram{}, fmt.Errorf("allocate referral code: %w", err)
}

func (s *Service) GetAffiliate(ctx context.Context, p Principal) (domain.AffiliateProgram, error) {
	return s.affiliates.GetByUser(ctx, p.UserID)
}

func (s *Service) UpdatePayout(ctx context.Context, p Principal, req PayoutRequest) (domain.AffiliateProgram, error) {
	verr := &domain.ValidationError{}
	method, err := domain.ParsePayoutMethod(strings.ToLower(strings.TrimSpace(req.PayoutMethod)))
	if err != nil {
		verr.Fields = append(verr.Fields, domain.FieldError{Field: "payout_method", Message: "must be paypal, bank_transfer, or stripe"})
	}
	ref := strings.TrimSpace(req.PaymentMethodRef)
	if ref == "" || len(ref) > 255 {
		verr.Fields = append(verr.Fields, domain.FieldError{Field: "payment_method_ref", Message: "must be 1-255 characters"})
	}
	if len(verr.Fields) > 0 {
		return domain.AffiliateProgram{}, verr
	}

	program, err := s.affiliates.GetByUser(ctx, p.UserID)
	if err != nil {
		return domain.AffiliateProgram{}, err
	}
	if program.Status == domain.AffiliateTerminated {
		return domain.AffiliateProgram{}, fmt.Errorf("%w: program terminated", domain.ErrForbidden)
	}
	if err := s.affiliates.UpdatePayout(ctx, program.AffiliateID, method, ref, s.nowFn()); err != nil {
		return domain.AffiliateProgram{}, err
	}
	return s.affiliates.GetByID(ctx, program.AffiliateID)
}

// ResolveReferral reports whether code belongs to an active program.
func (s *Service) ResolveReferral(ctx context.Context, code string) (AffiliateResolution, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	return AffiliateResolution{
		ReferralCode: normalized,
		Valid:        s.validReferralCode(ctx, normalized, uuid.Nil) != "",
	}, nil
}

func (s *Service) ListAffiliates(ctx context.Context, status string, q PageQuery) (AffiliateList, error) {
	var filter domain.AffiliateStatus
	if raw := strings.TrimSpace(status); raw != "" {
		parsed, err := domain.ParseAffiliateStatus(strings.ToLower(raw))
		if err != nil {
			return AffiliateList{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "status", Message: "unknown status"}}}
		}
		filter = parsed
	}
	page, window := normalizePage(q)
	items, total, err := s.affiliates.List(ctx, filter, window)
	if err != nil {
		return AffiliateList{}, err
	}
	if items == nil {
		items = []domain.AffiliateProgram{}
	}
	return AffiliateList{Items: items, Page: pageMeta(page, window, total)}, nil
}

func (s *Service) SetAffiliateStatus(ctx context.Context, affiliateID uuid.UUID, status string) (domain.AffiliateProgram, error) {
	parsed, err := domain.ParseAffiliateStatus(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return domain.AffiliateProgram{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "status", Message: "must be pending, active, suspended, or terminated"}}}
	}
	program, err := s.affiliates.GetByID(ctx, affiliateID)
	if err != nil {
		return domain.AffiliateProgram{}, err
	}
	if program.Status == domain.AffiliateTerminated && parsed != domain.AffiliateTerminated {
		return domain.AffiliateProgram{}, fmt.Errorf("%w: terminated programs cannot be reopened", domain.ErrConflict)
	}
	if err := s.affiliates.SetStatus(ctx, program.AffiliateID, parsed, s.nowFn()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.AffiliateProgram{}, fmt.Errorf("%w: terminated programs cannot be reopened", domain.ErrConflict)
		}
		return domain.AffiliateProgram{}, err
	}
	return s.affiliates.GetByID(ctx, program.AffiliateID)
}

// validReferralCode returns the normalized code when it names an active program not owned by self.
func (s *Service) validReferralCode(ctx context.Context, code string, self uuid.UUID) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != referralCodeLength {
		return ""
	}
	program, err := s.affiliates.GetByCode(ctx, normalized)
	if err != nil {
		return ""
	}
	if program.Status != domain.AffiliateActive || (self != uuid.Nil && program.UserID == self) {
		return ""
	}
	return normalized
}

// referralCredit resolves the affiliate owed a commission for payment, if any.
func (s *Service) referralCredit(ctx context.Context, payment domain.Payment, at time.Time) *ports.ReferralCredit {
	code := payment.ReferralCode
	if code == "" {
		user, err := s.users.GetByID(ctx, payment.UserID)
		if err != nil {
			return nil
		}
		code = user.ReferredBy
	}
	if s.validReferralCode(ctx, code, payment.UserID) == "" {
		return nil
	}
	program, err := s.affiliates.GetByCode(ctx, code)
	if err != nil {
		return nil
	}
	commission := program.Commission(payment.AmountCents)
	return &ports.ReferralCredit{
		AffiliateID:     program.AffiliateID,
		CommissionCents: commission,
		OutboxEvent: newEvent(eventTypeAffiliateConversion, program.AffiliateID.String(), map[string]any{
			"affiliate_id":     program.AffiliateID,
			"payment_id":       payment.PaymentID,
			"commission_cents": commission,
			"currency":         payment.Currency,
		}, at),
	}
}
