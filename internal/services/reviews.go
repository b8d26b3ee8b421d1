package services

import (
	"context"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/sirupsen/logrus"
)

// ReviewService applies create, update and delete against the store and keeps
// the list cache consistent.
type ReviewService struct {
	repo   models.ReviewRepository
	cache  ListCache
	logger *logrus.Logger
}

func NewReviewService(repo models.ReviewRepository, cache ListCache, logger *logrus.Logger) *ReviewService {
	return &ReviewService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (s *ReviewService) Get(ctx context.Context, id uint) (*models.Review, error) {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, unavailable("get review", err)
	}
	return review, nil
}

func (s *ReviewService) Create(ctx context.Context, draft validation.Draft) (*models.Review, error) {
	if !draft.Valid() {
		return nil, models.NewValidationError("", "Invalid body")
	}

	review := draft.Preview()
	if err := s.repo.Create(ctx, &review); err != nil {
		s.logger.WithError(err).Error("Failed to create review")
		return nil, unavailable("create review", err)
	}

	s.logger.WithFields(logrus.Fields{
		"review_id": review.ID,
		"author":    review.Author,
		"rating":    review.Rating,
	}).Info("Review created")

	s.invalidate(ctx)
	return &review, nil
}

func (s *ReviewService) Update(ctx context.Context, id uint, draft validation.Draft) (*models.Review, error) {
	if !draft.Valid() {
		return nil, models.NewValidationError("", "Invalid body")
	}

	review, err := s.repo.Update(ctx, id, draft.Input())
	if err != nil {
		s.logger.WithError(err).WithField("review_id", id).Warn("Failed to update review")
		return nil, unavailable("update review", err)
	}

	s.logger.WithField("review_id", id).Info("Review updated")

	s.invalidate(ctx)
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.WithError(err).WithField("review_id", id).Warn("Failed to delete review")
		return unavailable("delete review", err)
	}

	s.logger.WithField("review_id", id).Info("Review deleted")

	s.invalidate(ctx)
	return nil
}

func (s *ReviewService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateReviewLists(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate review list cache")
	}
}
