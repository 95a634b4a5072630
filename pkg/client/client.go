// Package client is a typed HTTP client for the pre-enrollment REST API.
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
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/models"
	"github.com/noah-isme/preenroll-api/pkg/config"
)

// IdempotencyHeader carries the idempotency key of a batch submission.
const IdempotencyHeader = "Idempotency-Key"

// Cache keys. A nested key such as "enrollment-status:2001" is dropped when its
// prefix is invalidated.
const (
	KeyPeriods          = "periods"
	KeyCareerSubjects   = "career-subjects"
	KeyEnrollmentStatus = "enrollment-status"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// ServerMessage returns the top level error message.
func (e *APIError) ServerMessage() string { return e.Message }

// ItemMessages returns the per-item messages of a rejected batch.
func (e *APIError) ItemMessages() []string { return e.Details }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	} `json:"error"`
}

// Client talks to the REST API. Reads are retried on transport failures, 429 and
// 5xx responses. Writes are sent exactly once.
type Client struct {
	baseURL     string
	http        *http.Client
	logger      *zap.Logger
	readRetries int
	retryDelay  time.Duration
	cacheTTL    time.Duration
	cache       *queryCache

	mu    sync.RWMutex
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReadRetries sets how many times a failed read is retried and the first delay.
func WithReadRetries(retries int, delay time.Duration) Option {
	return func(c *Client) {
		c.readRetries = retries
		c.retryDelay = delay
	}
}

// WithCacheTTL sets how long read responses stay fresh. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.cache = newQueryCache(now) }
}

// New creates a client for baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      zap.NewNop(),
		readRetries: 1,
		retryDelay:  500 * time.Millisecond,
		cacheTTL:    5 * time.Minute,
		cache:       newQueryCache(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// NewFromConfig creates a client from the CLI configuration.
func NewFromConfig(cfg *config.ClientConfig, logger *zap.Logger) *Client {
	return New(cfg.APIURL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithLogger(logger),
		WithReadRetries(cfg.ReadRetries, cfg.RetryDelay),
		WithCacheTTL(cfg.StatusStaleTime),
	)
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Invalidate drops cached reads under the given keys.
func (c *Client) Invalidate(keys ...string) {
	c.cache.invalidate(keys...)
	c.logger.Debug("query cache invalidated", zap.Strings("keys", keys))
}

// LoginStudent signs a student in and keeps the access token.
func (c *Client) LoginStudent(ctx context.Context, studentID int, password string) (*models.LoginResponse, error) {
	payload := models.StudentLoginRequest{StudentID: studentID, Password: password}
	var resp models.LoginResponse
	if err := c.write(ctx, http.MethodPost, "/auth/students/login", payload, nil, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	c.cache.invalidate(KeyPeriods, KeyCareerSubjects, KeyEnrollmentStatus)
	return &resp, nil
}

// Logout revokes the session server side and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.write(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.SetToken("")
	return err
}

// CurrentUser returns the signed in user.
func (c *Client) CurrentUser(ctx context.Context) (*models.UserInfo, error) {
	var user models.UserInfo
	if err := c.read(ctx, "/auth/me", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListPeriods returns every enrollment period.
func (c *Client) ListPeriods(ctx context.Context) ([]models.Period, error) {
	var periods []models.Period
	if err := c.read(ctx, "/periods", nil, KeyPeriods, &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

// EnrollmentStatus returns the student's enrollment status for the active period.
func (c *Client) EnrollmentStatus(ctx context.Context, studentID int) (*dto.EnrollmentStatusResponse, error) {
	query := url.Values{"studentId": {strconv.Itoa(studentID)}}
	key := KeyEnrollmentStatus + ":" + strconv.Itoa(studentID)
	var status dto.EnrollmentStatusResponse
	if err := c.read(ctx, "/enrollments/my-status", query, key, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CareerSubjects returns the subjects of a career offered in a semester.
func (c *Client) CareerSubjects(ctx context.Context, careerID string, semester int) ([]models.CareerSubject, error) {
	query := url.Values{"career_id": {careerID}, "semester": {strconv.Itoa(semester)}}
	key := fmt.Sprintf("%s:%s:%d", KeyCareerSubjects, careerID, semester)
	var items []models.CareerSubject
	if err := c.read(ctx, "/career-subjects", query, key, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SubmitEnrollmentBatch posts the batch once with the given idempotency key.
func (c *Client) SubmitEnrollmentBatch(ctx context.Context, req dto.EnrollmentBatchRequest, idempotencyKey string) (*dto.EnrollmentBatchResponse, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[IdempotencyHeader] = idempotencyKey
	}
	var resp dto.EnrollmentBatchResponse
	if err := c.write(ctx, http.MethodPost, "/enrollments/batch", req, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) read(ctx context.Context, path string, query url.Values, cacheKey string, out interface{}) error {
	if cacheKey != "" {
		if data, ok := c.cache.get(cacheKey); ok {
			c.logger.Debug("query cache hit", zap.String("key", cacheKey))
			return decodeData(data, out)
		}
	}
	generation := c.cache.begin()

	attempt := 0
	operation := func() (json.RawMessage, error) {
		attempt++
		data, err := c.do(ctx, http.MethodGet, path, query, nil, nil)
		if err == nil {
			return data, nil
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("read failed",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2

	tries := c.readRetries + 1
	if tries < 1 {
		tries = 1
	}
	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(tries)),
	)
	if err != nil {
		return err
	}

	if cacheKey != "" && !c.cache.put(cacheKey, generation, data, c.cacheTTL) {
		c.logger.Debug("discarded stale response", zap.String("key", cacheKey))
	}
	return decodeData(data, out)
}

func (c *Client) write(ctx context.Context, method, path string, payload interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}
	data, err := c.do(ctx, method, path, nil, body, headers)
	if err != nil {
		return err
	}
	return decodeData(data, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, headers map[string]string) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s %s: %w", method, path, err)
	}
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < http.StatusBadRequest {
			return nil, fmt.Errorf("decode response %s %s: %w", method, path, err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
			apiErr.Details = env.Error.Errors
		} else if text := strings.TrimSpace(string(raw)); text != "" {
			apiErr.Message = text
		}
		return nil, apiErr
	}
	return env.Data, nil
}

func decodeData(data json.RawMessage, out interface{}) error {
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return true
}
