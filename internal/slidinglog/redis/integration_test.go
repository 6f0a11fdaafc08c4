//go:build integration

package slredis_test

import (
	"context"
	"testing"
	"time"

	slredis "learn.requestlimiter/internal/slidinglog/redis"
	"learn.requestlimiter/internal/testharness/redistest"
)

func TestSlidingLogRedis_Integration(t *testing.T) {
	client := redistest.SetupRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	t.Run("Scenarios", func(t *testing.T) {
		limiterKey := "test_sl_integration_scenarios"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Second, 2)
		steps := []struct {
			offset  time.Duration
			allowed bool
			wait    time.Duration
		}{
			{0, true, 0},
			{10 * time.Millisecond, true, 0},
			{20 * time.Millisecond, false, 980 * time.Millisecond},
			{1010 * time.Millisecond, true, 0},
		}
		for i, step := range steps {
			d, err := limiter.CheckAndRecord(ctx, "user1", base.Add(step.offset))
			if err != nil {
				t.Fatalf("step %d: unexpected error: %v", i, err)
			}
			if d.Allowed != step.allowed || d.WaitTime != step.wait {
				t.Fatalf("step %d: decision = %+v, want allowed=%v wait=%v", i, d, step.allowed, step.wait)
			}
		}
	})

	t.Run("DifferentUsers", func(t *testing.T) {
		limiterKey := "test_sl_integration_users"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, 5*time.Second, 1)
		if d, err := limiter.CheckAndRecord(ctx, "userA", base); err != nil || !d.Allowed {
			t.Fatalf("userA should be allowed (err=%v)", err)
		}
		if d, err := limiter.CheckAndRecord(ctx, "userA", base); err != nil || d.Allowed {
			t.Fatalf("userA should be denied on second attempt (err=%v)", err)
		}
		if d, err := limiter.CheckAndRecord(ctx, "userB", base); err != nil || !d.Allowed {
			t.Fatalf("userB should be allowed (err=%v)", err)
		}
	})

	t.Run("BoundaryExactlyWindow", func(t *testing.T) {
		limiterKey := "test_sl_integration_boundary"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Second, 1)
		if d, err := limiter.CheckAndRecord(ctx, "user1", base); err != nil || !d.Allowed {
			t.Fatalf("first request should be allowed (err=%v)", err)
		}
		if d, err := limiter.CheckAndRecord(ctx, "user1", base.Add(999*time.Millisecond)); err != nil || d.Allowed {
			t.Fatalf("request inside the window should be denied (err=%v)", err)
		}
		if d, err := limiter.CheckAndRecord(ctx, "user1", base.Add(time.Second)); err != nil || !d.Allowed {
			t.Fatalf("request one window later should be allowed (err=%v)", err)
		}
	})

	t.Run("LimitOneWait", func(t *testing.T) {
		limiterKey := "test_sl_integration_limit_one"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Second, 1)
		if _, err := limiter.CheckAndRecord(ctx, "user1", base); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d, err := limiter.CheckAndRecord(ctx, "user1", base)
		if err != nil || d.Allowed || d.WaitTime != time.Second {
			t.Fatalf("decision = %+v (err=%v), want denied with 1s", d, err)
		}
	})

	t.Run("ClockMovesBackwards", func(t *testing.T) {
		limiterKey := "test_sl_integration_backwards"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Second, 2)
		for _, offset := range []time.Duration{10 * time.Second, 10500 * time.Millisecond} {
			if _, err := limiter.CheckAndRecord(ctx, "user1", base.Add(offset)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		d, err := limiter.CheckAndRecord(ctx, "user1", base.Add(3*time.Second))
		if err != nil || d.Allowed || d.WaitTime != 500*time.Millisecond {
			t.Fatalf("decision = %+v (err=%v), want denied with 500ms", d, err)
		}
	})

	t.Run("SubMillisecondSpacing", func(t *testing.T) {
		limiterKey := "test_sl_integration_sub_ms"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Second, 1)
		t0 := base.Add(900 * time.Nanosecond)
		if _, err := limiter.CheckAndRecord(ctx, "user1", t0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d, err := limiter.CheckAndRecord(ctx, "user1", t0.Add(999900*time.Microsecond))
		if err != nil || d.Allowed {
			t.Fatalf("decision = %+v (err=%v), want denied inside the window", d, err)
		}
	})

	t.Run("ConcurrentRequests", func(t *testing.T) {
		limiterKey := "test_sl_integration_concurrent"
		redistest.CleanupRedisKeys(t, client, limiterKey)
		defer redistest.CleanupRedisKeys(t, client, limiterKey)

		limiter := slredis.NewLimiter(client, limiterKey, time.Minute, 5)
		results := make(chan bool, 40)
		for i := 0; i < 40; i++ {
			go func() {
				d, err := limiter.CheckAndRecord(ctx, "user1", time.Now())
				if err != nil {
					t.Errorf("CheckAndRecord failed: %v", err)
				}
				results <- d.Allowed
			}()
		}
		allowed := 0
		for i := 0; i < 40; i++ {
			if <-results {
				allowed++
			}
		}
		if allowed != 5 {
			t.Fatalf("admitted %d requests, want exactly 5", allowed)
		}
	})
}
