// Package session is the durable per-attempt persistence layer. Four keys
// per attempt — answers, review flags, time spent, start timestamp — are
// written through synchronously before any mutation is acknowledged, so a
// crash between acknowledgment and the next event can never lose an answer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepnest/attempt-backend/internal/config"
)

// Store is scoped key-value persistence for attempt state. Loads return
// empty structures when nothing was persisted yet; they do not error on
// absence. Saves overwrite unconditionally.
type Store interface {
	// GetOrInitStartTimestamp returns the persisted start timestamp in epoch
	// milliseconds, stamping now on first call. Idempotent: repeated calls
	// for the same attempt return the identical value until Purge.
	GetOrInitStartTimestamp(ctx context.Context, attemptID string, now time.Time) (int64, error)

	LoadAnswers(ctx context.Context, attemptID string) (map[string]string, error)
	SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error

	LoadReview(ctx context.Context, attemptID string) (map[string]bool, error)
	SaveReview(ctx context.Context, attemptID string, review map[string]bool) error

	LoadTimeSpent(ctx context.Context, attemptID string) (map[string]float64, error)
	SaveTimeSpent(ctx context.Context, attemptID string, spent map[string]float64) error

	// Purge removes all four keys. Called only after the results service has
	// acknowledged the submission.
	Purge(ctx context.Context, attemptID string) error
}

// RedisStore persists attempt state in Redis. Values are JSON documents so
// the on-wire format stays inspectable with redis-cli during an incident.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetOrInitStartTimestamp(ctx context.Context, attemptID string, now time.Time) (int64, error) {
	key := config.StoreKey.AttemptStartKey(attemptID)

	// SETNX first so two racing loads of the same attempt agree on one stamp.
	if err := s.rdb.SetNX(ctx, key, now.UnixMilli(), 0).Err(); err != nil {
		return 0, fmt.Errorf("stamp start: %w", err)
	}

	ms, err := s.rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0, fmt.Errorf("read start: %w", err)
	}
	return ms, nil
}

func (s *RedisStore) LoadAnswers(ctx context.Context, attemptID string) (map[string]string, error) {
	out := map[string]string{}
	err := s.loadJSON(ctx, config.StoreKey.AttemptAnswersKey(attemptID), &out)
	return out, err
}

func (s *RedisStore) SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error {
	return s.saveJSON(ctx, config.StoreKey.AttemptAnswersKey(attemptID), answers)
}

func (s *RedisStore) LoadReview(ctx context.Context, attemptID string) (map[string]bool, error) {
	out := map[string]bool{}
	err := s.loadJSON(ctx, config.StoreKey.AttemptReviewKey(attemptID), &out)
	return out, err
}

func (s *RedisStore) SaveReview(ctx context.Context, attemptID string, review map[string]bool) error {
	return s.saveJSON(ctx, config.StoreKey.AttemptReviewKey(attemptID), review)
}

func (s *RedisStore) LoadTimeSpent(ctx context.Context, attemptID string) (map[string]float64, error) {
	out := map[string]float64{}
	err := s.loadJSON(ctx, config.StoreKey.AttemptTimeSpentKey(attemptID), &out)
	return out, err
}

func (s *RedisStore) SaveTimeSpent(ctx context.Context, attemptID string, spent map[string]float64) error {
	return s.saveJSON(ctx, config.StoreKey.AttemptTimeSpentKey(attemptID), spent)
}

func (s *RedisStore) Purge(ctx context.Context, attemptID string) error {
	return s.rdb.Del(ctx,
		config.StoreKey.AttemptAnswersKey(attemptID),
		config.StoreKey.AttemptReviewKey(attemptID),
		config.StoreKey.AttemptTimeSpentKey(attemptID),
		config.StoreKey.AttemptStartKey(attemptID),
	).Err()
}

func (s *RedisStore) loadJSON(ctx context.Context, key string, dst interface{}) error {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil // first-ever load
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) saveJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
