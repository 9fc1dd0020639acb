package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

func (s *Service) ListAilments(ctx context.Context, q AilmentQuery) (AilmentList, error) {
	filter := ports.AilmentFilter{Search: strings.TrimSpace(q.Search)}
	if raw := strings.TrimSpace(q.Category); raw != "" {
		category := domain.AilmentCategory(strings.ToLower(raw))
		if !category.Valid() {
			return AilmentList{}, &domain.ValidationError{Fields: []domain.FieldError{{Field: "category", Message: "must be one of the supported categories"}}}
		}
		filter.Category = category
	}
	page, window := normalizePage(q.PageQuery)
	items, total, err := s.ailments.List(ctx, filter, window)
	if err != nil {
		return AilmentList{}, err
	}
	if items == nil {
		items = []domain.Ailment{}
	}
	return AilmentList{Items: items, Page: pageMeta(page, window, total)}, nil
}

// GetAilment returns the ailment with its approved public remedies.
func (s *Service) GetAilment(ctx context.Context, ailmentID uuid.UUID) (AilmentDetail, error) {
	ailment, err := s.ailments.GetByID(ctx, ailmentID)
	if err != nil {
		return AilmentDetail{}, err
	}
	remedies, _, err := s.remedies.List(ctx, ports.RemedyFilter{
		AilmentID: ailmentID,
		Status:    domain.RemedyApproved,
		Sort:      "rating",
	}, ports.Page{Limit: maxPageSize})
	if err != nil {
		return AilmentDetail{}, err
	}
	if remedies == nil {
		remedies = []domain.Remedy{}
	}
	return AilmentDetail{Ailment: ailment, Remedies: remedies}, nil
}

func (s *Service) CreateAilment(ctx context.Context, p Principal, in domain.AilmentInput) (domain.Ailment, error) {
	normalized, err := domain.ValidateAilment(in)
	if err != nil {
		return domain.Ailment{}, err
	}
	now := s.nowFn()
	ailment := domain.Ailment{
		AilmentID:       uuid.New(),
		Name:            normalized.Name,
		Description:     normalized.Description,
		Category:        normalized.Category,
		Symptoms:        normalized.Symptoms,
		RelatedRemedies: normalized.RelatedRemedies,
		RelatedAilments: normalized.RelatedAilments,
		CreatedBy:       p.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.ailments.Create(ctx, ailment); err != nil {
		return domain.Ailment{}, err
	}
	return ailment, nil
}

func (s *Service) UpdateAilment(ctx context.Context, ailmentID uuid.UUID, in domain.AilmentInput) (domain.Ailment, error) {
	normalized, err := domain.ValidateAilment(in)
	if err != nil {
		return domain.Ailment{}, err
	}
	ailment, err := s.ailments.GetByID(ctx, ailmentID)
	if err != nil {
		return domain.Ailment{}, err
	}
	for _, id := range normalized.RelatedAilments {
		if id == ailmentID {
			return domain.Ailment{}, fmt.Errorf("%w: an ailment cannot relate to itself", domain.ErrInvalidInput)
		}
	}
	ailment.Name = normalized.Name
	ailment.Description = normalized.Description
	ailment.Category = normalized.Category
	ailment.Symptoms = normalized.Symptoms
	ailment.RelatedRemedies = normalized.RelatedRemedies
	ailment.RelatedAilments = normalized.RelatedAilments
	ailment.UpdatedAt = s.nowFn()
	if err := s.ailments.Update(ctx, ailment); err != nil {
		return domain.Ailment{}, err
	}
	return ailment, nil
}

func (s *Service) DeleteAilment(ctx context.Context, ailmentID uuid.UUID) error {
	return s.ailments.Delete(ctx, ailmentID)
}
