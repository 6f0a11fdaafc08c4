// Package fcinmemory provides an in-memory implementation of the Fixed Window Counter algorithm.
// Windows are aligned buckets of length window; a rejected request waits for the next bucket.
package fcinmemory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"learn.requestlimiter/types"
)

// Limiter implements the Fixed Window Counter algorithm using in-memory storage.
type Limiter struct {
	key     string
	window  time.Duration
	limit   int64
	epsilon time.Duration

	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count       int64
	windowStart time.Time
}

// NewLimiter creates a new in-memory Fixed Window Counter limiter.
func NewLimiter(key string, window time.Duration, limit int64, epsilon time.Duration) *Limiter {
	if epsilon <= 0 {
		epsilon = types.DefaultEpsilon
	}
	log.Info().Str("limiter_type", "FixedWindowCounter").Str("backend", "InMemory").Str("limiter_key", key).Dur("window", window).Int64("limit", limit).Msg("Limiter: Initialized")
	return &Limiter{
		key:      key,
		window:   window,
		limit:    limit,
		epsilon:  epsilon,
		counters: make(map[string]*windowCounter),
	}
}

// CheckAndRecord counts the request against the bucket containing now.
func (l *Limiter) CheckAndRecord(_ context.Context, identifier string, now time.Time) (types.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.bucketStart(now)
	counter, exists := l.counters[identifier]
	if !exists || windowStart.After(counter.windowStart) {
		counter = &windowCounter{windowStart: windowStart}
		l.counters[identifier] = counter
	}

	if counter.count < l.limit {
		counter.count++
		return types.Admit(), nil
	}

	d := types.Reject(counter.windowStart.Add(l.window).Sub(now), l.epsilon)
	log.Debug().Str("limiter_type", "FixedWindowCounter").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", identifier).Dur("wait", d.WaitTime).Msg("Limiter: Request denied")
	return d, nil
}

// bucketStart aligns buckets to the Unix epoch so they match the Redis counter's buckets.
// time.Truncate aligns to the zero Time instead, which differs for windows that do not divide it.
func (l *Limiter) bucketStart(now time.Time) time.Time {
	rem := now.Sub(time.Unix(0, 0)) % l.window
	if rem < 0 {
		rem += l.window
	}
	return now.Add(-rem)
}

// Sweep drops counters whose bucket ended at or before now.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for identifier, counter := range l.counters {
		if !counter.windowStart.Add(l.window).After(now) {
			delete(l.counters, identifier)
			evicted++
		}
	}
	return evicted
}

// StartJanitor runs Sweep every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := l.Sweep(now); n > 0 {
					log.Debug().Str("limiter_type", "FixedWindowCounter").Str("backend", "InMemory").Str("limiter_key", l.key).Int("evicted", n).Msg("Limiter: Swept idle users")
				}
			}
		}
	}()
}
