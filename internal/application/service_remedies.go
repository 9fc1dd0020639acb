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

var remedySorts = map[string]struct{}{"": {}, "newest": {}, "rating": {}, "name": {}}

// ListRemedies returns approved public remedies, or every remedy of the caller when Mine is set.
func (s *Service) ListRemedies(ctx context.Context, p *Principal, q RemedyQuery) (RemedyList, error) {
	verr := &domain.ValidationError{}
	filter := ports.RemedyFilter{Search: strings.TrimSpace(q.Search), Sort: strings.ToLower(strings.TrimSpace(q.Sort))}
	if raw := strings.TrimSpace(q.Type); raw != "" {
		t := domain.RemedyType(strings.ToLower(raw))
		if !t.Valid() {
			verr.Fields = append(verr.Fields, domain.FieldError{Field: "type", Message: "must be community, alternative, pharmaceutical, or ai"})
		}
		filter.Type = t
	}
	if raw := strings.TrimSpace(q.AilmentID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			verr.Fields = append(verr.Fields, domain.FieldError{Field: "ailment_id", Message: "must be a valid id"})
		}
		filter.AilmentID = id
	}
	if _, ok := remedySorts[filter.Sort]; !ok {
		verr.Fields = append(verr.Fields, domain.FieldError{Field: "sort", Message: "must be newest, rating, or name"})
	}
	if len(verr.Fields) > 0 {
		return RemedyList{}, verr
	}

	filter.Status = domain.RemedyApproved
	if q.Mine {
		if p == nil {
			return RemedyList{}, domain.ErrUnauthorized
		}
		filter.Viewer = p.UserID
	}

	page, window := normalizePage(q.PageQuery)
	items, total, err := s.remedies.List(ctx, filter, window)
	if err != nil {
		return RemedyList{}, err
	}
	if items == nil {
		items = []domain.Remedy{}
	}
	return RemedyList{Items: items, Page: pageMeta(page, window, total)}, nil
}

func (s *Service) GetRemedy(ctx context.Context, p *Principal, remedyID uuid.UUID) (domain.Remedy, error) {
	remedy, err := s.remedies.GetByID(ctx, remedyID)
	if err != nil {
		return domain.Remedy{}, err
	}
	if err := s.ensureVisible(ctx, p, remedy); err != nil {
		return domain.Remedy{}, err
	}
	return remedy, nil
}

// ensureVisible hides remedies the viewer may not read behind ErrNotFound.
func (s *Service) ensureVisible(ctx context.Context, p *Principal, remedy domain.Remedy) error {
	viewer := uuid.Nil
	if p != nil {
		viewer = p.UserID
	}
	if remedy.VisibleTo(viewer, "") {
		return nil
	}
	if p == nil {
		return domain.ErrNotFound
	}
	role, err := s.CurrentRole(ctx, p.UserID)
	if err != nil {
		return err
	}
	if !remedy.VisibleTo(viewer, role) {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) CreateRemedy(ctx context.Context, p Principal, in domain.RemedyInput) (domain.Remedy, error) {
	normalized, err := domain.ValidateRemedy(in)
	if err != nil {
		return domain.Remedy{}, err
	}
	if err := s.ensureAilmentExists(ctx, normalized.AilmentID); err != nil {
		return domain.Remedy{}, err
	}

	now := s.nowFn()
	remedy := domain.Remedy{
		RemedyID:     uuid.New(),
		AilmentID:    normalized.AilmentID,
		AuthorID:     p.UserID,
		Type:         normalized.Type,
		Status:       domain.RemedyPending,
		Name:         normalized.Name,
		Description:  normalized.Description,
		Ingredients:  normalized.Ingredients,
		Instructions: normalized.Instructions,
		Precautions:  normalized.Precautions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.remedies.Create(ctx, remedy); err != nil {
		return domain.Remedy{}, err
	}
	s.emit(ctx, eventTypeRemedySubmitted, remedy.RemedyID.String(), map[string]any{
		"remedy_id":  remedy.RemedyID,
		"author_id":  remedy.AuthorID,
		"ailment_id": remedy.AilmentID,
		"type":       remedy.Type,
	})
	return remedy, nil
}

// UpdateRemedy lets the author resubmit a remedy for review, or a moderator correct it in place.
func (s *Service) UpdateRemedy(ctx context.Context, p Principal, remedyID uuid.UUID, in domain.RemedyInput) (domain.Remedy, error) {
	remedy, err := s.remedies.GetByID(ctx, remedyID)
	if err != nil {
		return domain.Remedy{}, err
	}
	role, err := s.CurrentRole(ctx, p.UserID)
	if err != nil {
		return domain.Remedy{}, err
	}
	owner := remedy.AuthorID == p.UserID
	moderator := role.In(domain.ModeratorRoles...)
	if !owner && !moderator {
		if !remedy.VisibleTo(p.UserID, role) {
			return domain.Remedy{}, domain.ErrNotFound
		}
		return domain.Remedy{}, domain.ErrForbidden
	}
	if remedy.Type == domain.RemedyAI {
		return domain.Remedy{}, fmt.Errorf("%w: generated remedies cannot be edited", domain.ErrForbidden)
	}

	normalized, err := domain.ValidateRemedy(in)
	if err != nil {
		return domain.Remedy{}, err
	}
	if normalized.AilmentID != remedy.AilmentID {
		if err := s.ensureAilmentExists(ctx, normalized.AilmentID); err != nil {
			return domain.Remedy{}, err
		}
	}

	remedy.AilmentID = normalized.AilmentID
	remedy.Type = normalized.Type
	remedy.Name = normalized.Name
	remedy.Description = normalized.Description
	remedy.Ingredients = normalized.Ingredients
	remedy.Instructions = normalized.Instructions
	remedy.Precautions = normalized.Precautions
	remedy.UpdatedAt = s.nowFn()
	if owner && !moderator {
		remedy.Status = domain.RemedyPending
		remedy.RejectionReason = ""
	}
	if err := s.remedies.Update(ctx, remedy); err != nil {
		return domain.Remedy{}, err
	}
	return remedy, nil
}

func (s *Service) DeleteRemedy(ctx context.Context, p Principal, remedyID uuid.UUID) error {
	remedy, err := s.remedies.GetByID(ctx, remedyID)
	if err != nil {
		return err
	}
	if remedy.AuthorID != p.UserID {
		role, err := s.CurrentRole(ctx, p.UserID)
		if err != nil {
			return err
		}
		if !role.In(domain.AdminRoles...) {
			if !remedy.VisibleTo(p.UserID, role) {
				return domain.ErrNotFound
			}
			return domain.ErrForbidden
		}
	}
	return s.remedies.Delete(ctx, remedyID)
}

func (s *Service) SaveRemedy(ctx context.Context, p Principal, remedyID uuid.UUID) error {
	if _, err := s.GetRemedy(ctx, &p, remedyID); err != nil {
		return err
	}
	return s.remedies.Save(ctx, p.UserID, remedyID, s.nowFn())
}

func (s *Service) UnsaveRemedy(ctx context.Context, p Principal, remedyID uuid.UUID) error {
	return s.remedies.Unsave(ctx, p.UserID, remedyID)
}

func (s *Service) ListSavedRemedies(ctx context.Context, p Principal, q PageQuery) (RemedyList, error) {
	page, window := normalizePage(q)
	items, total, err := s.remedies.ListSaved(ctx, p.UserID, window)
	if err != nil {
		return RemedyList{}, err
	}
	if items == nil {
		items = []domain.Remedy{}
	}
	return RemedyList{Items: items, Page: pageMeta(page, window, total)}, nil
}

func (s *Service) ensureAilmentExists(ctx context.Context, ailmentID uuid.UUID) error {
	if _, err := s.ailments.GetByID(ctx, ailmentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ValidationError{Fields: []domain.FieldError{{Field: "ailment_id", Message: "does not exist"}}}
		}
		return err
	}
	return nil
}
