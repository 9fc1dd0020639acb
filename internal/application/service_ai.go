package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const defaultAIDailyQuota = 10

// GenerateRemedy asks the configured generator for a remedy tailored to the caller's health
// profile and stores it as a private, approved AI remedy.
func (s *Service) GenerateRemedy(ctx context.Context, p Principal, req GenerateRemedyRequest) (domain.Remedy, error) {
	if s.generator == nil {
		return domain.Remedy{}, fmt.Errorf("%w: remedy generation is disabled", domain.ErrAIUnavailable)
	}
	ailmentID, err := uuid.Parse(strings.TrimSpace(req.AilmentID))
	if err != nil {
		return domain.Remedy{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "ailment_id", Message: "must be a valid id"}}}
	}
	notes := strings.TrimSpace(req.Notes)
	if utf8.RuneCountInString(notes) > 1000 {
		return domain.Remedy{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "notes", Message: "is too long"}}}
	}

	status, err := s.FlowStatus(ctx, &p)
	if err != nil {
		return domain.Remedy{}, err
	}
	if status != domain.FlowComplete {
		return domain.Remedy{}, domain.ErrFlowIncomplete
	}
	consent, err := s.consents.Get(ctx, p.UserID)
	if err != nil {
		return domain.Remedy{}, err
	}
	if !consent.AIRemedyConsent {
		return domain.Remedy{}, domain.ErrConsentRequired
	}

	ailment, err := s.ailments.GetByID(ctx, ailmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Remedy{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "ailment_id", Message: "does not exist"}}}
		}
		return domain.Remedy{}, err
	}
	quotaKey, err := s.consumeAIQuota(ctx, p.UserID)
	if err != nil {
		return domain.Remedy{}, err
	}
	profile, err := s.profiles.Get(ctx, p.UserID)
	if err != nil {
		s.refundAIQuota(ctx, quotaKey)
		return domain.Remedy{}, err
	}

	genCtx := ctx
	if s.cfg.AIGenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.AIGenerateTimeout)
		defer cancel()
	}
	generated, err := s.generator.Generate(genCtx, ports.RemedyPrompt{
		AilmentName:        ailment.Name,
		AilmentDescription: ailment.Description,
		Symptoms:           ailment.Symptoms,
		Conditions:         profile.Conditions,
		Allergies:          profile.Allergies,
		Medications:        profile.Medications,
		DietaryPreferences: profile.DietaryPreferences,
		Notes:              notes,
	})
	if err != nil {
		s.metrics.Generation("failure")
		appLogger().ErrorContext(ctx, "remedy generation failed",
			"operation", "generate_remedy",
			"outcome", "failure",
			"ailment_id", ailmentID,
			"error", err,
		)
		s.refundAIQuota(ctx, quotaKey)
		return domain.Remedy{}, fmt.Errorf("%w: remedy generation failed", domain.ErrAIUnavailable)
	}
	name := strings.TrimSpace(generated.Name)
	if name == "" || strings.TrimSpace(generated.Instructions) == "" {
		s.metrics.Generation("invalid")
		s.refundAIQuota(ctx, quotaKey)
		return domain.Remedy{}, fmt.Errorf("%w: generator returned an incomplete remedy", domain.ErrAIUnavailable)
	}
	if utf8.RuneCountInString(name) > 150 {
		name = string([]rune(name)[:150])
	}

	now := s.nowFn()
	remedy := domain.Remedy{
		RemedyID:     uuid.New(),
		AilmentID:    ailment.AilmentID,
		AuthorID:     p.UserID,
		Type:         domain.RemedyAI,
		Status:       domain.RemedyApproved,
		Private:      true,
		Name:         name,
		Description:  strings.TrimSpace(generated.Description),
		Ingredients:  nonNil(generated.Ingredients),
		Instructions: strings.TrimSpace(generated.Instructions),
		Precautions:  nonNil(generated.Precautions),
		Disclaimer:   domain.AIDisclaimer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.remedies.Create(ctx, remedy); err != nil {
		s.refundAIQuota(ctx, quotaKey)
		return domain.Remedy{}, err
	}
	s.metrics.Generation("success")
	s.emit(ctx, eventTypeRemedyGenerated, p.UserID.String(), map[string]any{
		"remedy_id":  remedy.RemedyID,
		"user_id":    p.UserID,
		"ailment_id": ailment.AilmentID,
	})
	return remedy, nil
}

// consumeAIQuota counts one generation against today's allowance and returns the counter key
// to refund if the generation does not produce a remedy.
func (s *Service) consumeAIQuota(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.quotas == nil {
		return "", nil
	}
	limit := s.cfg.AIDailyQuota
	if limit <= 0 {
		limit = defaultAIDailyQuota
	}
	key := "ai:quota:" + userID.String() + ":" + s.nowFn().Format("20060102")
	used, err := s.quotas.Increment(ctx, key, 24*time.Hour)
	if err != nil {
		appLogger().WarnContext(ctx, "quota counter unavailable",
			"operation", "generate_remedy",
			"outcome", "warning",
			"error", err,
		)
		return "", nil
	}
	if used > int64(limit) {
		s.refundAIQuota(ctx, key)
		return "", domain.ErrQuotaExceeded
	}
	return key, nil
}

func (s *Service) refundAIQuota(ctx context.Context, key string) {
	if key == "" || s.quotas == nil {
		return
	}
	if err := s.quotas.Decrement(ctx, key); err != nil {
		appLogger().WarnContext(ctx, "quota refund failed",
			"operation", "generate_remedy",
			"outcome", "warning",
			"error", err,
		)
	}
}

func nonNil(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
