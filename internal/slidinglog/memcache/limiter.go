// Package slmemcache provides a Memcache implementation of the sliding log rate limiting algorithm.
//
// A user's timestamps are stored as one JSON item. Admissions are written back with Add (first
// request) or CompareAndSwap, so two concurrent writers never both succeed on the same state.
package slmemcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"learn.requestlimiter/internal/memcacheiface"
	"learn.requestlimiter/internal/slidinglog"
	"learn.requestlimiter/types"
)

const (
	// DefaultMaxAttempts bounds the optimistic write loop of one check.
	DefaultMaxAttempts = 8
	maxKeyLength       = 250
)

// ErrContention is returned when every optimistic write attempt lost to a concurrent writer.
var ErrContention = errors.New("memcache: too much contention on limiter state")

// Limiter implements the sliding log algorithm using Memcache.
type Limiter struct {
	client      memcacheiface.Client
	keyPrefix   string
	window      time.Duration
	limit       int
	epsilon     time.Duration
	maxAttempts int
}

// logState is the stored form of a user's timestamps, in Unix nanoseconds so that stored
// values compare exactly against the check time.
type logState struct {
	Timestamps []int64 `json:"ts_ns"`
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

// WithMaxAttempts sets how many times a check retries after losing a write race.
func WithMaxAttempts(n int) NewLimiterOption {
	return func(l *Limiter) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// NewLimiter creates a new Memcache sliding log limiter.
func NewLimiter(client memcacheiface.Client, keyPrefix string, window time.Duration, limit int64, opts ...NewLimiterOption) *Limiter {
	l := &Limiter{
		client:      client,
		keyPrefix:   keyPrefix,
		window:      window,
		limit:       int(limit),
		epsilon:     types.DefaultEpsilon,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("limiter_type", "SlidingLog").Str("backend", "Memcache").Str("limiter_key_prefix", keyPrefix).Dur("window", window).Int64("limit", limit).Msg("Limiter: Initialized")
	return l
}

// CheckAndRecord decides admission for userID at now against the state stored in Memcache.
func (l *Limiter) CheckAndRecord(ctx context.Context, userID string, now time.Time) (types.Decision, error) {
	key := l.itemKey(userID)

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.Decision{}, err
		}

		item, err := l.client.Get(key)
		if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			log.Error().Err(err).Str("limiter", l.keyPrefix).Str("id", userID).Msg("Failed to get limiter state")
			return types.Decision{}, fmt.Errorf("memcache get failed for limiter '%s', identifier '%s': %w", l.keyPrefix, userID, err)
		}

		var stored []time.Time
		if item != nil {
			stored, err = decodeState(item.Value)
			if err != nil {
				return types.Decision{}, fmt.Errorf("limiter '%s', identifier '%s': %w", l.keyPrefix, userID, err)
			}
		}

		kept, d := slidinglog.Decide(stored, now, l.window, l.limit, l.epsilon)
		if !d.Allowed {
			log.Debug().Str("limiter", l.keyPrefix).Str("id", userID).Int("count", len(kept)).Dur("wait", d.WaitTime).Msg("Denied")
			return d, nil
		}

		value, err := encodeState(kept)
		if err != nil {
			return types.Decision{}, fmt.Errorf("limiter '%s', identifier '%s': %w", l.keyPrefix, userID, err)
		}

		if item == nil {
			err = l.client.Add(&memcache.Item{Key: key, Value: value, Expiration: l.expiration()})
		} else {
			item.Value = value
			item.Expiration = l.expiration()
			err = l.client.CompareAndSwap(item)
		}
		switch {
		case err == nil:
			log.Debug().Str("limiter", l.keyPrefix).Str("id", userID).Int("count", len(kept)).Int("attempt", attempt).Msg("Allowed")
			return d, nil
		case errors.Is(err, memcache.ErrNotStored), errors.Is(err, memcache.ErrCASConflict):
			log.Debug().Str("limiter", l.keyPrefix).Str("id", userID).Int("attempt", attempt).Msg("Lost write race, retrying")
			continue
		default:
			log.Error().Err(err).Str("limiter", l.keyPrefix).Str("id", userID).Msg("Failed to store limiter state")
			return types.Decision{}, fmt.Errorf("memcache write failed for limiter '%s', identifier '%s': %w", l.keyPrefix, userID, err)
		}
	}
	return types.Decision{}, fmt.Errorf("limiter '%s', identifier '%s': %w", l.keyPrefix, userID, ErrContention)
}

// expiration keeps the item slightly longer than one window.
func (l *Limiter) expiration() int32 {
	seconds := int32((l.window + time.Second - 1) / time.Second)
	return seconds + 1
}

// itemKey builds the memcache key. Plain ids live under ":u:" and ids that would make an
// invalid key are hashed under ":h:", so the two forms never collide.
func (l *Limiter) itemKey(userID string) string {
	key := l.keyPrefix + ":u:" + userID
	if legalKey(key) {
		return key
	}
	return l.keyPrefix + ":h:" + strconv.FormatUint(xxhash.Sum64String(userID), 16)
}

func legalKey(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}

func decodeState(value []byte) ([]time.Time, error) {
	var state logState
	if err := json.Unmarshal(value, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	out := make([]time.Time, len(state.Timestamps))
	for i, ns := range state.Timestamps {
		out[i] = time.Unix(0, ns)
	}
	return out, nil
}

func encodeState(timestamps []time.Time) ([]byte, error) {
	state := logState{Timestamps: make([]int64, len(timestamps))}
	for i, ts := range timestamps {
		state.Timestamps[i] = ts.UnixNano()
	}
	value, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return value, nil
}
