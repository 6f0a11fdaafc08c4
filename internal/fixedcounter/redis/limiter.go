package fcredis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"learn.requestlimiter/types"
)

// Limiter implements the Fixed Window Counter algorithm using Redis.
type Limiter struct {
	client  *redis.Client
	key     string
	window  time.Duration
	limit   int64
	epsilon time.Duration
	script  *redis.Script
}

// NewLimiter creates a new Redis-backed Fixed Window Counter limiter.
func NewLimiter(client *redis.Client, key string, window time.Duration, limit int64, epsilon time.Duration) *Limiter {
	if epsilon <= 0 {
		epsilon = types.DefaultEpsilon
	}
	log.Info().Str("limiter_type", "FixedWindowCounter").Str("backend", "Redis").Str("limiter_key", key).Dur("window", window).Int64("limit", limit).Msg("Limiter: Initialized")
	return &Limiter{
		client:  client,
		key:     key,
		window:  window,
		limit:   limit,
		epsilon: epsilon,
		script:  redisCheckAndRecordScript,
	}
}

// CheckAndRecord checks if a request for the given identifier is allowed using a Redis Lua script.
func (l *Limiter) CheckAndRecord(ctx context.Context, identifier string, now time.Time) (types.Decision, error) {
	redisKey := l.key + ":fc:" + identifier

	result, err := l.script.Run(ctx, l.client, []string{redisKey}, now.UnixMilli(), l.window.Milliseconds(), l.limit).Result()
	if err != nil {
		return types.Decision{}, fmt.Errorf("redis script execution failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return types.Decision{}, fmt.Errorf("unexpected script result type: %T", result)
	}
	allowed, ok1 := values[0].(int64)
	waitMillis, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return types.Decision{}, fmt.Errorf("unexpected script result type: %T, %T", values[0], values[1])
	}

	if allowed == 1 {
		return types.Admit(), nil
	}
	d := types.Reject(time.Duration(waitMillis)*time.Millisecond, l.epsilon)
	log.Debug().Str("limiter_type", "FixedWindowCounter").Str("backend", "Redis").Str("limiter_key", l.key).Str("identifier", identifier).Dur("wait", d.WaitTime).Msg("Limiter: Request denied")
	return d, nil
}
