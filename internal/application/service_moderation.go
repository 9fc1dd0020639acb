package application

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

const (
	moderationKindRemedy = "remedy"
	moderationKindReview = "review"
)

// ModerationQueue lists pending remedies or flagged reviews.
func (s *Service) ModerationQueue(ctx context.Context, kind string, q PageQuery) (ModerationQueue, error) {
	page, window := normalizePage(q)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "remedies":
		items, total, err := s.remedies.List(ctx, moderationRemedyFilter(), window)
		if err != nil {
			return ModerationQueue{}, err
		}
		if items == nil {
			items = []domain.Remedy{}
		}
		return ModerationQueue{Kind: "remedies", Remedies: items, Page: pageMeta(page, window, total)}, nil
	case "reviews":
		items, total, err := s.reviews.ListFlagged(ctx, window)
		if err != nil {
			return ModerationQueue{}, err
		}
		if items == nil {
			items = []domain.Review{}
		}
		return ModerationQueue{Kind: "reviews", Reviews: items, Page: pageMeta(page, window, total)}, nil
	default:
		return ModerationQueue{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "kind", Message: "must be remedies or reviews"}}}
	}
}

func (s *Service) ApproveRemedy(ctx context.Context, p Principal, remedyID uuid.UUID) (domain.Remedy, error) {
	return s.decideRemedy(ctx, p, remedyID, domain.RemedyApproved, "")
}

func (s *Service) RejectRemedy(ctx context.Context, p Principal, remedyID uuid.UUID, reason string) (domain.Remedy, error) {
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n == 0 || n > 1000 {
		return domain.Remedy{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "reason", Message: "must be 1-1000 characters"}}}
	}
	return s.decideRemedy(ctx, p, remedyID, domain.RemedyRejected, reason)
}

func (s *Service) decideRemedy(ctx context.Context, p Principal, remedyID uuid.UUID, next domain.RemedyStatus, reason string) (domain.Remedy, error) {
	action := "approve"
	if next == domain.RemedyRejected {
		action = "reject"
	}
	remedy, err := s.moderation.DecideRemedy(ctx, remedyID, next, reason,
		s.moderationOutcome(p, moderationKindRemedy, remedyID, action, reason))
	if err != nil {
		return domain.Remedy{}, err
	}
	s.metrics.ModerationDecision(moderationKindRemedy, action)
	return remedy, nil
}

func (s *Service) HideReview(ctx context.Context, p Principal, reviewID uuid.UUID, reason string) (domain.Review, error) {
	return s.decideReview(ctx, p, reviewID, domain.ReviewHidden, "hide", reason)
}

func (s *Service) RestoreReview(ctx context.Context, p Principal, reviewID uuid.UUID) (domain.Review, error) {
	return s.decideReview(ctx, p, reviewID, domain.ReviewVisible, "restore", "")
}

func (s *Service) decideReview(ctx context.Context, p Principal, reviewID uuid.UUID, next domain.ReviewStatus, action, reason string) (domain.Review, error) {
	review, err := s.moderation.DecideReview(ctx, reviewID, next,
		s.moderationOutcome(p, moderationKindReview, reviewID, action, strings.TrimSpace(reason)))
	if err != nil {
		return domain.Review{}, err
	}
	s.metrics.ModerationDecision(moderationKindReview, action)
	return review, nil
}

func (s *Service) moderationOutcome(p Principal, kind string, targetID uuid.UUID, action, reason string) ports.ModerationOutcome {
	now := s.nowFn()
	decision := domain.ModerationDecision{
		DecisionID:  uuid.New(),
		ModeratorID: p.UserID,
		TargetKind:  kind,
		TargetID:    targetID,
		Action:      action,
		Reason:      reason,
		CreatedAt:   now,
	}
	return ports.ModerationOutcome{
		Decision: decision,
		OutboxEvent: newEvent(eventTypeModerationDecision, targetID.String(), map[string]any{
			"decision_id":  decision.DecisionID,
			"moderator_id": p.UserID,
			"target_kind":  kind,
			"target_id":    targetID,
			"action":       action,
			"reason":       reason,
		}, now),
	}
}

func (s *Service) ModerationLog(ctx context.Context, q PageQuery) (ModerationLog, error) {
	page, window := normalizePage(q)
	items, total, err := s.moderation.List(ctx, window)
	if err != nil {
		return ModerationLog{}, err
	}
	if items == nil {
		items = []domain.ModerationDecision{}
	}
	return ModerationLog{Items: items, Page: pageMeta(page, window, total)}, nil
}

func moderationRemedyFilter() ports.RemedyFilter {
	return ports.RemedyFilter{Status: domain.RemedyPending, Sort: "oldest"}
}
