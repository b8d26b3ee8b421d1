// Package client talks to the records API over HTTP and maps its responses
// onto the domain error kinds.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/sirupsen/logrus"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
	logger     *logrus.Logger
}

// NewClient builds a client. timeout bounds each individual request.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  DefaultRetryConfig(),
		logger: logger,
	}
}

// WithRetry replaces the retry policy used by the *WithRetry reads.
func (c *Client) WithRetry(cfg RetryConfig) *Client {
	c.retry = cfg
	return c
}

// listBody is decoded loosely so malformed records can be dropped one by one.
type listBody struct {
	Data          []json.RawMessage `json:"data"`
	Pages         *int              `json:"pages"`
	UniqueAuthors []string          `json:"uniqueAuthors"`
}

type singleBody struct {
	Data *models.Review `json:"data"`
}

type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

// ListReviews fetches one page. Records that are not well formed are dropped
// and logged; a missing or negative page count is a malformed response.
func (c *Client) ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error) {
	query := url.Values{}
	for k, v := range filter.Values(page) {
		query.Set(k, v)
	}

	var body listBody
	if err := c.makeRequest(ctx, http.MethodGet, "/records?"+query.Encode(), nil, &body); err != nil {
		return nil, err
	}

	if body.Pages == nil || *body.Pages < 0 {
		return nil, malformed("list reviews", fmt.Errorf("missing or negative page count"))
	}

	result := &models.PageResult{
		Reviews:       make([]models.Review, 0, len(body.Data)),
		Pages:         *body.Pages,
		UniqueAuthors: body.UniqueAuthors,
	}
	if result.UniqueAuthors == nil {
		result.UniqueAuthors = []string{}
	}

	for i, raw := range body.Data {
		var review models.Review
		if err := json.Unmarshal(raw, &review); err != nil || !review.Valid() {
			c.logger.WithFields(logrus.Fields{
				"index": i,
				"page":  page,
			}).Warn("Dropping malformed review from list response")
			continue
		}
		result.Reviews = append(result.Reviews, review)
	}

	return result, nil
}

func (c *Client) GetReview(ctx context.Context, id uint) (*models.Review, error) {
	return c.single(ctx, "get review", http.MethodGet, reviewPath(id), nil)
}

func (c *Client) CreateReview(ctx context.Context, input models.ReviewInput) (*models.Review, error) {
	return c.single(ctx, "create review", http.MethodPost, "/records", input)
}

func (c *Client) UpdateReview(ctx context.Context, id uint, input models.ReviewInput) (*models.Review, error) {
	return c.single(ctx, "update review", http.MethodPut, reviewPath(id), input)
}

// DeleteReview accepts any 2xx as confirmation; the body is plain text.
func (c *Client) DeleteReview(ctx context.Context, id uint) error {
	return c.makeRequest(ctx, http.MethodDelete, reviewPath(id), nil, nil)
}

func (c *Client) single(ctx context.Context, op, method, path string, payload interface{}) (*models.Review, error) {
	var body singleBody
	if err := c.makeRequest(ctx, method, path, payload, &body); err != nil {
		return nil, err
	}
	if body.Data == nil || !body.Data.Valid() {
		return nil, malformed(op, fmt.Errorf("response carries no valid review"))
	}
	return body.Data, nil
}

func reviewPath(id uint) string {
	return "/records/" + strconv.FormatUint(uint64(id), 10)
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	target := c.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"url":      target,
		"has_body": payload != nil,
	}).Debug("Making records API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewUnavailableError("request failed", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewUnavailableError("failed to read response", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"method":        method,
		"url":           target,
		"response_size": len(responseBody),
	}).Debug("Records API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, responseBody)
	}

	if result != nil {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return malformed(method+" "+endpoint, err)
		}
	}

	return nil
}

// statusError maps a non-2xx response onto an error kind, keeping the server's
// message when the body carries one.
func statusError(status int, body []byte) error {
	var eb errorBody
	message := ""
	if json.Unmarshal(body, &eb) == nil {
		message = eb.Message
		if message == "" {
			message = eb.Error
		}
	} else {
		message = string(bytes.TrimSpace(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	cause := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusBadRequest:
		e := models.NewValidationError("", message)
		e.Fields = eb.Fields
		for field, msg := range eb.Fields {
			if msg == message {
				e.Field = field
			}
		}
		e.Err = cause
		return e
	case status == http.StatusNotFound:
		return models.NewNotFoundError(message, cause)
	case status == http.StatusConflict:
		return &models.Error{Kind: models.KindStaleReference, Message: message, Err: cause}
	default:
		return models.NewUnavailableError(message, cause)
	}
}

func malformed(op string, err error) error {
	return models.NewUnavailableError(op+": malformed response", err)
}

// IsTimeout reports whether err came from a request deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
