// Package rlredis records admitted request timestamps in Redis lists, one per user.
package rlredis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Log appends unix-microsecond timestamps to "<key>:log:<userID>". The log namespace is
// disjoint from the limiter state and registry keys of the same limiter key.
type Log struct {
	client     *redis.Client
	key        string
	maxEntries int
}

// New returns a Redis request log. A positive maxEntries trims each list to its newest entries.
func New(client *redis.Client, key string, maxEntries int) *Log {
	return &Log{client: client, key: key, maxEntries: maxEntries}
}

func (l *Log) listKey(userID string) string {
	return l.key + ":log:" + userID
}

func (l *Log) Append(ctx context.Context, userID string, ts time.Time) error {
	k := l.listKey(userID)
	if err := l.client.RPush(ctx, k, ts.UnixMicro()).Err(); err != nil {
		return fmt.Errorf("redis request log append for '%s': %w", userID, err)
	}
	if l.maxEntries > 0 {
		if err := l.client.LTrim(ctx, k, int64(-l.maxEntries), -1).Err(); err != nil {
			return fmt.Errorf("redis request log trim for '%s': %w", userID, err)
		}
	}
	return nil
}

// Entries returns the recorded timestamps for userID, oldest first.
func (l *Log) Entries(ctx context.Context, userID string) ([]time.Time, error) {
	vals, err := l.client.LRange(ctx, l.listKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis request log read for '%s': %w", userID, err)
	}
	out := make([]time.Time, 0, len(vals))
	for _, v := range vals {
		us, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis request log for '%s' holds malformed entry %q: %w", userID, v, err)
		}
		out = append(out, time.UnixMicro(us).UTC())
	}
	return out, nil
}
