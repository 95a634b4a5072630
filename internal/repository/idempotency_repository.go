package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPending = "pending"

// IdempotencyRecord is what is stored under an idempotency key: a pending marker
// while the request runs, then the response that was sent.
type IdempotencyRecord struct {
	State       string          `json:"state"`
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Pending reports whether the original request is still running.
func (r *IdempotencyRecord) Pending() bool {
	return r.State == idempotencyPending
}

// IdempotencyRepository reserves idempotency keys in Redis with SETNX semantics.
type IdempotencyRepository struct {
	client *redis.Client
}

// NewIdempotencyRepository constructs the repository. A nil client disables reservations.
func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

// Enabled reports whether a Redis client is configured.
func (r *IdempotencyRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Reserve stores a pending marker for key unless one exists. It returns false
// when the key was already reserved or completed.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(IdempotencyRecord{State: idempotencyPending, Fingerprint: fingerprint})
	if err != nil {
		return false, fmt.Errorf("marshal idempotency marker: %w", err)
	}
	ok, err := r.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Get returns the record stored under key, or nil when there is none.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var record IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency record %s: %w", key, err)
	}
	return &record, nil
}

// Complete replaces the pending marker with the final response.
func (r *IdempotencyRepository) Complete(ctx context.Context, key, fingerprint string, status int, body interface{}, ttl time.Duration) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal idempotent response: %w", err)
	}
	payload, err := json.Marshal(IdempotencyRecord{State: "done", Fingerprint: fingerprint, Status: status, Body: encoded})
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Release drops the reservation so the request can be retried.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
