package services

import (
	"context"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Find(ctx context.Context, filter models.ReviewFilter, skip, take int) ([]models.Review, error) {
	args := m.Called(ctx, filter, skip, take)
	reviews, _ := args.Get(0).([]models.Review)
	return reviews, args.Error(1)
}

func (m *mockRepo) Count(ctx context.Context, filter models.ReviewFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) DistinctAuthors(ctx context.Context, filter models.ReviewFilter) ([]string, error) {
	args := m.Called(ctx, filter)
	authors, _ := args.Get(0).([]string)
	return authors, args.Error(1)
}

func (m *mockRepo) GetByID(ctx context.Context, id uint) (*models.Review, error) {
	args := m.Called(ctx, id)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *mockRepo) Create(ctx context.Context, review *models.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockRepo) Update(ctx context.Context, id uint, input models.ReviewInput) (*models.Review, error) {
	args := m.Called(ctx, id, input)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *mockRepo) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) ReviewListKey(ctx context.Context, filter models.ReviewFilter, page models.PageRequest) (string, error) {
	args := m.Called(ctx, filter, page)
	return args.String(0), args.Error(1)
}

func (m *mockCache) GetReviewList(ctx context.Context, key string) (*models.PageResult, error) {
	args := m.Called(ctx, key)
	result, _ := args.Get(0).(*models.PageResult)
	return result, args.Error(1)
}

func (m *mockCache) CacheReviewList(ctx context.Context, key string, result *models.PageResult, expiration time.Duration) error {
	args := m.Called(ctx, key, result, expiration)
	return args.Error(0)
}

func (m *mockCache) InvalidateReviewLists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
