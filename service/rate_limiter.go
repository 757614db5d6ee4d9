package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cityzen/logx"
	"cityzen/repository"
)

// SubmissionLimiter decides whether a citizen may submit another complaint now.
type SubmissionLimiter interface {
	Allow(ctx context.Context, citizenUID string) (bool, time.Duration, error)
}

const submissionKeyPrefix = "ratelimit:complaints:"

// RedisSubmissionLimiter is a fixed-window counter: INCR per attempt, EXPIRE on the first.
type RedisSubmissionLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisSubmissionLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisSubmissionLimiter {
	return &RedisSubmissionLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *RedisSubmissionLimiter) Allow(ctx context.Context, citizenUID string) (bool, time.Duration, error) {
	key := submissionKeyPrefix + citizenUID
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment submission counter: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set submission window: %w", err)
		}
	}
	if n <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// StoreSubmissionLimiter counts the citizen's stored complaints inside the window.
type StoreSubmissionLimiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewStoreSubmissionLimiter(store Store, limit int, window time.Duration) *StoreSubmissionLimiter {
	return &StoreSubmissionLimiter{store: store, limit: limit, window: window, now: time.Now}
}

func (l *StoreSubmissionLimiter) Allow(ctx context.Context, citizenUID string) (bool, time.Duration, error) {
	var n int
	err := l.store.View(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.CountSubmissionsSince(ctx, citizenUID, l.now().UTC().Add(-l.window))
		return err
	})
	if err != nil {
		return false, 0, err
	}
	if n >= l.limit {
		return false, l.window, nil
	}
	return true, 0, nil
}

// FallbackLimiter asks primary and, if it errors, secondary.
type FallbackLimiter struct {
	primary   SubmissionLimiter
	secondary SubmissionLimiter
	log       logx.Logger
}

func NewFallbackLimiter(primary, secondary SubmissionLimiter, log logx.Logger) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, secondary: secondary, log: log}
}

func (l *FallbackLimiter) Allow(ctx context.Context, citizenUID string) (bool, time.Duration, error) {
	ok, retry, err := l.primary.Allow(ctx, citizenUID)
	if err == nil {
		return ok, retry, nil
	}
	l.log.Warn(ctx, "rate_limiter_fallback", "primary limiter failed, using fallback", slog.String("error", err.Error()))
	return l.secondary.Allow(ctx, citizenUID)
}
