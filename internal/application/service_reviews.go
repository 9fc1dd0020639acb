package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

func (s *Service) ListReviews(ctx context.Context, p *Principal, remedyID uuid.UUID, q PageQuery) (ReviewList, error) {
	if _, err := s.GetRemedy(ctx, p, remedyID); err != nil {
		return ReviewList{}, err
	}
	page, window := normalizePage(q)
	items, total, err := s.reviews.ListByRemedy(ctx, remedyID, window)
	if err != nil {
		return ReviewList{}, err
	}
	if items == nil {
		items = []domain.Review{}
	}
	return ReviewList{Items: items, Page: pageMeta(page, window, total)}, nil
}

// CreateReview stores the caller's single review of an approved public remedy.
func (s *Service) CreateReview(ctx context.Context, p Principal, remedyID uuid.UUID, req ReviewRequest) (domain.Review, error) {
	comment, err := domain.ValidateReview(req.Rating, req.Comment)
	if err != nil {
		return domain.Review{}, err
	}
	remedy, err := s.GetRemedy(ctx, &p, remedyID)
	if err != nil {
		return domain.Review{}, err
	}
	if remedy.Status != domain.RemedyApproved || remedy.Private {
		return domain.Review{}, fmt.Errorf("%w: only published remedies can be reviewed", domain.ErrForbidden)
	}
	if remedy.AuthorID == p.UserID {
		return domain.Review{}, fmt.Errorf("%w: authors cannot review their own remedy", domain.ErrForbidden)
	}

	now := s.nowFn()
	review := domain.Review{
		ReviewID:  uuid.New(),
		RemedyID:  remedyID,
		UserID:    p.UserID,
		Rating:    req.Rating,
		Comment:   comment,
		Status:    domain.ReviewVisible,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return domain.Review{}, err
	}
	s.emit(ctx, eventTypeReviewCreated, remedyID.String(), map[string]any{
		"review_id": review.ReviewID,
		"remedy_id": remedyID,
		"user_id":   p.UserID,
		"rating":    review.Rating,
	})
	return review, nil
}

// FlagReview marks a review for moderator attention. Hidden reviews stay hidden.
func (s *Service) FlagReview(ctx context.Context, p Principal, reviewID uuid.UUID) (domain.Review, error) {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if review.Status == domain.ReviewHidden {
		return domain.Review{}, domain.ErrNotFound
	}
	if review.UserID == p.UserID {
		return domain.Review{}, fmt.Errorf("%w: cannot flag your own review", domain.ErrForbidden)
	}
	return s.reviews.Flag(ctx, reviewID, s.nowFn())
}
