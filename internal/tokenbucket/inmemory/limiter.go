// Package tbinmemory provides an in-memory implementation of the Token Bucket rate limiting algorithm.
package tbinmemory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"learn.requestlimiter/types"
)

// Limiter holds one token bucket per identifier.
type Limiter struct {
	key      string
	rate     rate.Limit
	capacity int
	epsilon  time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a new in-memory Token Bucket limiter.
// Tokens are added at perSecond per second up to capacity; buckets start full.
func NewLimiter(key string, perSecond float64, capacity int, epsilon time.Duration) *Limiter {
	if epsilon <= 0 {
		epsilon = types.DefaultEpsilon
	}
	log.Info().Str("limiter_type", "TokenBucket").Str("backend", "InMemory").Str("limiter_key", key).Float64("rate", perSecond).Int("capacity", capacity).Msg("Limiter: Initialized")
	return &Limiter{
		key:      key,
		rate:     rate.Limit(perSecond),
		capacity: capacity,
		epsilon:  epsilon,
		buckets:  make(map[string]*rate.Limiter),
	}
}

// CheckAndRecord takes a token for identifier at now, or reports when the next token is available.
func (l *Limiter) CheckAndRecord(_ context.Context, identifier string, now time.Time) (types.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, exists := l.buckets[identifier]
	if !exists {
		log.Debug().Str("limiter_type", "TokenBucket").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", identifier).Msg("Limiter: Creating new token bucket")
		bucket = rate.NewLimiter(l.rate, l.capacity)
		l.buckets[identifier] = bucket
	}

	r := bucket.ReserveN(now, 1)
	if !r.OK() {
		return types.Reject(l.epsilon, l.epsilon), nil
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return types.Admit(), nil
	}
	r.CancelAt(now)

	d := types.Reject(delay, l.epsilon)
	log.Debug().Str("limiter_type", "TokenBucket").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", identifier).Dur("wait", d.WaitTime).Msg("Limiter: Request denied")
	return d, nil
}

// Sweep drops buckets that have refilled to capacity by now. A new bucket starts full, so
// decisions are unchanged.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for identifier, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.capacity) {
			delete(l.buckets, identifier)
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
					log.Debug().Str("limiter_type", "TokenBucket").Str("backend", "InMemory").Str("limiter_key", l.key).Int("evicted", n).Msg("Limiter: Swept idle users")
				}
			}
		}
	}()
}
