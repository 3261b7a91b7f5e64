package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	completionsKeyPrefix = "quota:completions:"
	windowDuration       = time.Minute
	keyTTL               = windowDuration + 30*time.Second
)

// RateLimiter tracks completion calls in a per-user Redis sorted set scored
// by timestamp, so the per-minute window slides and is shared across API
// instances.
type RateLimiter struct {
	rdb redis.Cmdable
}

func NewRateLimiter(rdb redis.Cmdable) *RateLimiter {
	return &RateLimiter{rdb: rdb}
}

// Allow reports whether the user is under limit and, if so, records one
// completion call. A denied call is not recorded.
func (rl *RateLimiter) Allow(ctx context.Context, userID uuid.UUID, limit int) (bool, error) {
	key := completionsKeyPrefix + userID.String()
	now := time.Now()

	var inWindow *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-windowDuration).UnixMicro(), 10))
		inWindow = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("counting completion window: %w", err)
	}

	if inWindow.Val() >= int64(limit) {
		return false, nil
	}

	_, err = rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMicro()),
			Member: strconv.FormatInt(now.UnixNano(), 36),
		})
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording completion call: %w", err)
	}
	return true, nil
}

// Usage returns the number of completion calls inside the current window.
func (rl *RateLimiter) Usage(ctx context.Context, userID uuid.UUID) (int, error) {
	key := completionsKeyPrefix + userID.String()
	cutoff := strconv.FormatInt(time.Now().Add(-windowDuration).UnixMicro(), 10)

	count, err := rl.rdb.ZCount(ctx, key, cutoff, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("reading completion window: %w", err)
	}
	return int(count), nil
}
