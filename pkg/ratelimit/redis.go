package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// Redis shares budgets between processes using a sorted set per key,
// trimmed and counted atomically inside a Lua script.
type Redis struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{
		rdb:           rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:source:" + key
}

func (rl *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("ratelimit: redis allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

var _ Limiter = (*Redis)(nil)
