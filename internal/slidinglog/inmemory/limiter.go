// Package slinmemory provides an in-memory implementation of the sliding log rate limiting algorithm.
//
// Each user owns a deque of admitted request timestamps. A check prunes timestamps that are no
// longer strictly inside the trailing window, admits the request when fewer than limit remain and
// otherwise reports how long until the oldest remaining timestamp leaves the window.
package slinmemory

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"

	"learn.requestlimiter/types"
)

// Limiter is the in-memory sliding log. Safe for concurrent use.
type Limiter struct {
	key     string
	window  time.Duration
	limit   int
	epsilon time.Duration
	shards  []*shard
}

// shard guards a subset of users. The prune-check-append sequence for a user runs under its shard lock.
type shard struct {
	mu   sync.Mutex
	logs map[string]*deque.Deque[time.Time]
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

// WithShards sets the number of lock shards. One shard means a single global lock.
func WithShards(n int) NewLimiterOption {
	return func(l *Limiter) {
		if n > 0 {
			l.shards = newShards(n)
		}
	}
}

// NewLimiter creates a new in-memory sliding log limiter admitting at most limit requests per window.
func NewLimiter(key string, window time.Duration, limit int64, opts ...NewLimiterOption) *Limiter {
	l := &Limiter{
		key:     key,
		window:  window,
		limit:   int(limit),
		epsilon: types.DefaultEpsilon,
		shards:  newShards(32),
	}
	for _, opt := range opts {
		opt(l)
	}
	log.Info().Str("limiter_type", "SlidingLog").Str("backend", "InMemory").Str("limiter_key", key).Dur("window", window).Int64("limit", limit).Int("shards", len(l.shards)).Msg("Limiter: Initialized")
	return l
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{logs: make(map[string]*deque.Deque[time.Time])}
	}
	return shards
}

func (l *Limiter) shardFor(userID string) *shard {
	return l.shards[xxhash.Sum64String(userID)%uint64(len(l.shards))]
}

// CheckAndRecord decides admission for userID at now. It never fails and does not consult any registry.
// A now earlier than the newest recorded timestamp for the user is treated as that timestamp.
func (l *Limiter) CheckAndRecord(_ context.Context, userID string, now time.Time) (types.Decision, error) {
	s := l.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	q, exists := s.logs[userID]
	if !exists {
		q = new(deque.Deque[time.Time])
		s.logs[userID] = q
	}

	if q.Len() > 0 && now.Before(q.Back()) {
		log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", userID).Time("now", now).Time("newest", q.Back()).Msg("Limiter: Clock moved backwards, clamping")
		now = q.Back()
	}

	windowStart := now.Add(-l.window)
	for q.Len() > 0 && !q.Front().After(windowStart) {
		q.PopFront()
	}

	if q.Len() < l.limit {
		q.PushBack(now)
		log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", userID).Int("count", q.Len()).Msg("Limiter: Request allowed")
		return types.Admit(), nil
	}

	d := types.Reject(q.Front().Add(l.window).Sub(now), l.epsilon)
	log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "InMemory").Str("limiter_key", l.key).Str("identifier", userID).Int("count", q.Len()).Dur("wait", d.WaitTime).Msg("Limiter: Request denied")
	return d, nil
}

// Len returns the number of in-window timestamps currently held for userID as of its last check.
func (l *Limiter) Len(userID string) int {
	s := l.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.logs[userID]; ok {
		return q.Len()
	}
	return 0
}

// Users returns the number of users with state held in memory.
func (l *Limiter) Users() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.logs)
		s.mu.Unlock()
	}
	return n
}

// Sweep drops users whose newest timestamp is no longer inside the window ending at now.
// Such users would be admitted on their next request anyway, so decisions are unaffected.
func (l *Limiter) Sweep(now time.Time) int {
	windowStart := now.Add(-l.window)
	evicted := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for userID, q := range s.logs {
			if q.Len() == 0 || !q.Back().After(windowStart) {
				delete(s.logs, userID)
				evicted++
			}
		}
		s.mu.Unlock()
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
					log.Debug().Str("limiter_type", "SlidingLog").Str("backend", "InMemory").Str("limiter_key", l.key).Int("evicted", n).Msg("Limiter: Swept idle users")
				}
			}
		}
	}()
}
