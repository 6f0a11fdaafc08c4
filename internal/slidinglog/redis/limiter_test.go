package slredis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
)

var mockTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

const fixedMember = "member-1"

func fixedMemberFunc() string { return fixedMember }

func TestNewLimiter_SlidingLogRedis(t *testing.T) {
	client, _ := redismock.NewClientMock()
	l := NewLimiter(client, "test_sl", time.Second, 2)
	if l == nil {
		t.Fatal("NewLimiter returned nil")
	}
	if l.epsilon != time.Millisecond {
		t.Errorf("default epsilon = %v, want 1ms", l.epsilon)
	}
	if l.memberFunc() == l.memberFunc() {
		t.Error("default member func should produce unique members")
	}
}

func TestCheckAndRecord_SlidingLogRedis(t *testing.T) {
	ctx := context.Background()
	limiterKey := "test_check_sl"
	userID := "user123"
	window := time.Second
	limit := int64(2)
	expectedKey := limiterKey + ":sl:" + userID
	sha := redisCheckAndRecordScript.Hash()
	args := []interface{}{mockTime.UnixMicro(), mockTime.UnixMicro(), window.Microseconds(), limit, time.Millisecond.Microseconds(), fixedMember}

	newLimiter := func(t *testing.T) (*Limiter, redismock.ClientMock) {
		db, mock := redismock.NewClientMock()
		return NewLimiter(db, limiterKey, window, limit, WithMemberFunc(fixedMemberFunc)), mock
	}

	t.Run("Allowed", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetVal([]interface{}{int64(1), int64(0)})

		d, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
		if !d.Allowed || d.WaitTime != 0 {
			t.Fatalf("decision = %+v, want allowed", d)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis mock expectations not met: %s", err)
		}
	})

	t.Run("DeniedWithWait", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetVal([]interface{}{int64(0), int64(980000)})

		d, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
		if d.Allowed {
			t.Fatal("request unexpectedly allowed")
		}
		if d.WaitTime != 980*time.Millisecond {
			t.Fatalf("WaitTime = %v, want 980ms", d.WaitTime)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis mock expectations not met: %s", err)
		}
	})

	t.Run("DeniedWaitFlooredAtEpsilon", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetVal([]interface{}{int64(0), int64(0)})

		d, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
		if d.Allowed || d.WaitTime != time.Millisecond {
			t.Fatalf("decision = %+v, want denied with 1ms wait", d)
		}
	})

	t.Run("ScriptError", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		redisErr := errors.New("redis script error")
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetErr(redisErr)

		_, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if err == nil {
			t.Fatal("expected an error but got nil")
		}
		if !errors.Is(err, redisErr) {
			t.Fatalf("expected wrapped %v, got %v", redisErr, err)
		}
		if !strings.Contains(err.Error(), limiterKey) || !strings.Contains(err.Error(), userID) {
			t.Fatalf("error should name limiter and identifier: %v", err)
		}
	})

	t.Run("RedisNil", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetErr(redis.Nil)

		_, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if !errors.Is(err, redis.Nil) {
			t.Fatalf("expected wrapped redis.Nil, got %v", err)
		}
	})

	t.Run("UnexpectedResultType", func(t *testing.T) {
		limiter, mock := newLimiter(t)
		mock.ExpectEvalSha(sha, []string{expectedKey}, args...).SetVal("not a list")

		_, err := limiter.CheckAndRecord(ctx, userID, mockTime)
		if err == nil || !strings.Contains(err.Error(), "unexpected script result type") {
			t.Fatalf("expected unexpected result type error, got %v", err)
		}
	})
}

func TestCheckAndRecord_SlidingLogRedisKeysAndRounding(t *testing.T) {
	ctx := context.Background()
	sha := redisCheckAndRecordScript.Hash()
	window := time.Second
	limit := int64(1)

	t.Run("StateKeyIsNamespaced", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		limiter := NewLimiter(db, "api", window, limit, WithMemberFunc(fixedMemberFunc))
		for _, userID := range []string{"users", "registry", "log:bob"} {
			mock.ExpectEvalSha(sha, []string{"api:sl:" + userID},
				mockTime.UnixMicro(), mockTime.UnixMicro(), window.Microseconds(), limit, time.Millisecond.Microseconds(), fixedMember).
				SetVal([]interface{}{int64(1), int64(0)})
			if _, err := limiter.CheckAndRecord(ctx, userID, mockTime); err != nil {
				t.Fatalf("CheckAndRecord(%q) failed: %v", userID, err)
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis mock expectations not met: %s", err)
		}
	})

	t.Run("SubMicrosecondTimeIsBracketed", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		limiter := NewLimiter(db, "api", window, limit, WithMemberFunc(fixedMemberFunc))
		now := mockTime.Add(900 * time.Nanosecond)
		mock.ExpectEvalSha(sha, []string{"api:sl:user1"},
			mockTime.UnixMicro(), mockTime.UnixMicro()+1, window.Microseconds(), limit, time.Millisecond.Microseconds(), fixedMember).
			SetVal([]interface{}{int64(1), int64(0)})
		if _, err := limiter.CheckAndRecord(ctx, "user1", now); err != nil {
			t.Fatalf("CheckAndRecord failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis mock expectations not met: %s", err)
		}
	})
}

func TestUnixMicroBounds(t *testing.T) {
	tests := []struct {
		name      string
		t         time.Time
		wantFloor int64
		wantCeil  int64
	}{
		{"WholeMicrosecond", mockTime.Add(5 * time.Microsecond), mockTime.UnixMicro() + 5, mockTime.UnixMicro() + 5},
		{"Fraction", mockTime.Add(900 * time.Nanosecond), mockTime.UnixMicro(), mockTime.UnixMicro() + 1},
		{"BeforeEpoch", time.Unix(-1, 500), -1000000, -999999},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			floor, ceil := unixMicroBounds(tc.t)
			if floor != tc.wantFloor || ceil != tc.wantCeil {
				t.Fatalf("unixMicroBounds = (%d, %d), want (%d, %d)", floor, ceil, tc.wantFloor, tc.wantCeil)
			}
		})
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name        string
		result      interface{}
		wantAllowed bool
		wantWait    int64
		wantErr     bool
	}{
		{"Allowed", []interface{}{int64(1), int64(0)}, true, 0, false},
		{"Denied", []interface{}{int64(0), int64(42)}, false, 42, false},
		{"ShortList", []interface{}{int64(1)}, false, 0, true},
		{"WrongElementType", []interface{}{"1", int64(0)}, false, 0, true},
		{"WrongWaitType", []interface{}{int64(0), "42"}, false, 0, true},
		{"NotAList", int64(1), false, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			allowed, wait, err := parseResult(tc.result)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if allowed != tc.wantAllowed || wait != tc.wantWait {
				t.Fatalf("parseResult = (%v, %d), want (%v, %d)", allowed, wait, tc.wantAllowed, tc.wantWait)
			}
		})
	}
}
