package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// ListReviewsWithRetry retries transient list failures. Mutations are never
// retried: a lost response would otherwise apply them twice.
func (c *Client) ListReviewsWithRetry(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error) {
	var result *models.PageResult
	err := c.retryOperation(ctx, func() error {
		var err error
		result, err = c.ListReviews(ctx, filter, page)
		return err
	})
	return result, err
}

func (c *Client) GetReviewWithRetry(ctx context.Context, id uint) (*models.Review, error) {
	var result *models.Review
	err := c.retryOperation(ctx, func() error {
		var err error
		result, err = c.GetReview(ctx, id)
		return err
	})
	return result, err
}

func (c *Client) retryOperation(ctx context.Context, operation func() error) error {
	config := c.retry

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}

		if !errors.Is(err, models.ErrStorageUnavailable) || ctx.Err() != nil {
			return err
		}

		if attempt >= config.MaxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", config.MaxRetries, err)
		}

		delay := time.Duration(float64(config.BaseDelay) * math.Pow(1.5, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err.Error(),
		}).Warn("Retrying operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
