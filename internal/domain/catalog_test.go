package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/remlyo/remlyo-api/internal/domain"
)

func TestValidateAilment(t *testing.T) {
	t.Parallel()

	out, err := domain.ValidateAilment(domain.AilmentInput{
		Name:        "  Insomnia ",
		Description: "Difficulty falling or staying asleep.",
		Category:    "Sleep",
		Symptoms:    []string{"restlessness", "Restlessness", "fatigue"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "Insomnia" || out.Category != domain.AilmentSleep {
		t.Fatalf("not normalized: %+v", out)
	}
	if len(out.Symptoms) != 2 {
		t.Fatalf("duplicate symptom kept: %v", out.Symptoms)
	}

	_, err = domain.ValidateAilment(domain.AilmentInput{
		Name:            "X",
		Category:        "astrology",
		RelatedRemedies: []string{"nope"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) < 4 {
		t.Fatalf("expected several field errors, got %v", err)
	}
}

func TestValidateRemedyRejectsAIType(t *testing.T) {
	t.Parallel()

	in := domain.RemedyInput{
		AilmentID:    uuid.NewString(),
		Type:         "ai",
		Name:         "Ginger tea",
		Description:  "Fresh ginger steeped in hot water.",
		Instructions: "Steep sliced ginger for ten minutes.",
	}
	if _, err := domain.ValidateRemedy(in); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for ai type, got %v", err)
	}
	in.Type = "community"
	out, err := domain.ValidateRemedy(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Type != domain.RemedyCommunity {
		t.Fatalf("unexpected type %s", out.Type)
	}
}

func TestRemedyVisibility(t *testing.T) {
	t.Parallel()

	author, other := uuid.New(), uuid.New()
	pending := domain.Remedy{AuthorID: author, Status: domain.RemedyPending}
	private := domain.Remedy{AuthorID: author, Status: domain.RemedyApproved, Private: true}

	if !pending.VisibleTo(author, domain.RoleUser) {
		t.Fatalf("author must see own pending remedy")
	}
	if pending.VisibleTo(other, domain.RoleUser) {
		t.Fatalf("other users must not see pending remedy")
	}
	if !pending.VisibleTo(other, domain.RoleModerator) {
		t.Fatalf("moderators review pending remedies")
	}
	if private.VisibleTo(other, domain.RoleAdmin) {
		t.Fatalf("private remedies stay private")
	}
	if pending.VisibleTo(uuid.Nil, domain.RoleUser) {
		t.Fatalf("anonymous viewer matched nil author")
	}
}

func TestValidateReview(t *testing.T) {
	t.Parallel()

	if _, err := domain.ValidateReview(0, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected rating error")
	}
	if _, err := domain.ValidateReview(3, strings.Repeat("a", 2001)); err == nil {
		t.Fatalf("expected comment length error")
	}
	comment, err := domain.ValidateReview(5, "  helpful ")
	if err != nil || comment != "helpful" {
		t.Fatalf("got %q, %v", comment, err)
	}
}

func TestNextPeriodExtendsEntitledSubscription(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	plan := domain.Plan{PlanID: "basic_monthly", Interval: "month"}

	start, end := domain.NextPeriod(nil, plan, now)
	if !start.Equal(now) || !end.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("fresh period wrong: %s - %s", start, end)
	}

	existing := &domain.Subscription{Status: domain.SubscriptionActive, CurrentPeriodEnd: now.AddDate(0, 0, 10)}
	start, end = domain.NextPeriod(existing, plan, now)
	if !start.Equal(existing.CurrentPeriodEnd) || !end.Equal(existing.CurrentPeriodEnd.AddDate(0, 1, 0)) {
		t.Fatalf("entitled period should extend: %s - %s", start, end)
	}

	expired := &domain.Subscription{Status: domain.SubscriptionExpired, CurrentPeriodEnd: now.AddDate(0, 0, 10)}
	start, _ = domain.NextPeriod(expired, plan, now)
	if !start.Equal(now) {
		t.Fatalf("expired subscription should restart now, got %s", start)
	}

	yearly := domain.Plan{Interval: "year"}
	if got := yearly.PeriodEnd(now); !got.Equal(now.AddDate(1, 0, 0)) {
		t.Fatalf("yearly period end %s", got)
	}
	if got := domain.ReceiptNumber(now, "ABC123"); got != "RML-20260115-ABC123" {
		t.Fatalf("receipt number %s", got)
	}
}

func TestAffiliateCommissionRounding(t *testing.T) {
	t.Parallel()

	a := domain.AffiliateProgram{CommissionRate: 0.2}
	if got := a.Commission(999); got != 200 {
		t.Fatalf("commission = %d, want 200", got)
	}
	if got := a.Commission(2); got != 0 {
		t.Fatalf("commission = %d, want 0", got)
	}
	if _, err := domain.ParseAffiliateStatus("bogus"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid status error")
	}
}
