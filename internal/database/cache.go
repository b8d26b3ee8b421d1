package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/pkg/utils"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Cache stores list results in redis. Entries are namespaced by a generation
// counter; bumping the counter invalidates every cached page at once.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	ReviewListKeyFormat = "reviews:list:%d:%s"
	ReviewGenerationKey = "reviews:list:generation"
	SystemHealthKey     = "system:health"
)

// ErrCacheMiss is returned when no cached value exists.
var ErrCacheMiss = redis.Nil

func listFingerprint(filter models.ReviewFilter, page models.PageRequest) string {
	return utils.MD5Hash(fmt.Sprintf("%q|%q|%d|%d|%d",
		filter.Search, filter.Author, filter.Rating, page.Page, page.PageSize))
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, ReviewGenerationKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ReviewListKey resolves the key for a page under the current generation. The
// same key must be used for the lookup and the store so a result computed
// before an invalidation never lands in the new generation.
func (c *Cache) ReviewListKey(ctx context.Context, filter models.ReviewFilter, page models.PageRequest) (string, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(ReviewListKeyFormat, gen, listFingerprint(filter, page)), nil
}

// GetReviewList returns a cached page or ErrCacheMiss.
func (c *Cache) GetReviewList(ctx context.Context, key string) (*models.PageResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var result models.PageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached page: %w", err)
	}
	return &result, nil
}

// CacheReviewList stores a page under key.
func (c *Cache) CacheReviewList(ctx context.Context, key string, result *models.PageResult, expiration time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal page result: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// InvalidateReviewLists bumps the generation; old keys expire on their own.
func (c *Cache) InvalidateReviewLists(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, ReviewGenerationKey).Result()
	if err != nil {
		return err
	}
	c.logger.WithField("generation", gen).Debug("Review list cache invalidated")
	return nil
}

// CacheSystemHealth caches system health status
func (c *Cache) CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error {
	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal system health: %w", err)
	}

	return c.client.Set(ctx, SystemHealthKey, data, expiration).Err()
}

// GetCachedSystemHealth retrieves cached system health
func (c *Cache) GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	data, err := c.client.Get(ctx, SystemHealthKey).Bytes()
	if err != nil {
		return nil, err
	}

	var health []models.SystemHealth
	err = json.Unmarshal(data, &health)
	return health, err
}
