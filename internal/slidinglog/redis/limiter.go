// Package slredis provides a Redis implementation of the sliding log rate limiting algorithm.
// Each user's admitted timestamps live in the sorted set "<key>:sl:<user>"; the whole check
// runs as one Lua script.
package slredis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"learn.requestlimiter/types"
)

// Limiter implements the sliding log algorithm using Redis.
type Limiter struct {
	client     *redis.Client
	key        string
	window     time.Duration
	limit      int64
	epsilon    time.Duration
	script     *redis.Script
	memberFunc func() string
}

// NewLimiterOption is a function type for setting options on a Limiter.
type NewLimiterOption func(*Limiter)

// WithEpsilon sets the minimum wait reported on rejection.
func WithEpsilon(epsilon time.Duration) NewLimiterOption {
	return func(l *Limiter) {
		if epsilon > 0 {
			l.epsilon = epsilon
		}
	}
}

// WithMemberFunc sets the generator of sorted set members. Members must be unique per request.
func WithMemberFunc(fn func() string) NewLimiterOption {
	return func(l *Limiter) {
		l.memberFunc = fn
	}
}

// NewLimiter creates a new Redis-backed sliding log limiter.
func NewLimiter(client *redis.Client, key string, window time.Duration, limit int64, opts ...NewLimiterOption) *Limiter {
	l := &Limiter{
		client:     client,
		key:        key,
		window:     window,
		limit:      limit,
		epsilon:    types.DefaultEpsilon,
		script:     redisCheckAndRecordScript,
		memberFunc: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("limiter_type", "SlidingLog").Str("backend", "Redis").Str("limiter_key", key).Dur("window", window).Int64("limit", limit).Msg("Limiter: Initialized")
	return l
}

// CheckAndRecord runs the admission check for userID at now atomically on the Redis server.
func (l *Limiter) CheckAndRecord(ctx context.Context, userID string, now time.Time) (types.Decision, error) {
	nowFloor, nowCeil := unixMicroBounds(now)
	result, err := l.script.Run(ctx, l.client, []string{l.stateKey(userID)},
		nowFloor, nowCeil, l.window.Microseconds(), l.limit, l.epsilon.Microseconds(), l.memberFunc()).Result()
	if err != nil {
		log.Error().Err(err).Str("limiter_type", "SlidingLog").Str("backend", "Redis").Str("limiter_key", l.key).Str("identifier", userID).Msg("Limiter: Script execution failed")
		return types.Decision{}, fmt.Errorf("redis script error for limiter '%s', identifier '%s': %w", l.key, userID, err)
	}

	allowed, waitMicros, err := parseResult(result)
	if err != nil {
		return types.Decision{}, fmt.Errorf("limiter '%s', identifier '%s': %w", l.key, userID, err)
	}
	if allowed {
		log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "Redis").Str("limiter_key", l.key).Str("identifier", userID).Msg("Limiter: Request allowed")
		return types.Admit(), nil
	}
	d := types.Reject(time.Duration(waitMicros)*time.Microsecond, l.epsilon)
	log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "Redis").Str("limiter_key", l.key).Str("identifier", userID).Dur("wait", d.WaitTime).Msg("Limiter: Request denied")
	return d, nil
}

// stateKey namespaces limiter state so no user id can name a registry or request log key.
func (l *Limiter) stateKey(userID string) string {
	return l.key + ":sl:" + userID
}

// unixMicroBounds returns t in whole Unix microseconds, rounded down and rounded up.
func unixMicroBounds(t time.Time) (int64, int64) {
	floor := t.Truncate(time.Microsecond)
	if floor.Equal(t) {
		return floor.UnixMicro(), floor.UnixMicro()
	}
	return floor.UnixMicro(), floor.UnixMicro() + 1
}

func parseResult(result interface{}) (bool, int64, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script result type: %T", result)
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected script result type: %T", values[0])
	}
	wait, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected script result type: %T", values[1])
	}
	return allowed == 1, wait, nil
}
