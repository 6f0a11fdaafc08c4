// Package rlinmemory records admitted request timestamps per user in process memory.
package rlinmemory

import (
	"context"
	"sync"
	"time"
)

// Log is an append-only in-memory request log. Safe for concurrent use.
type Log struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string][]time.Time
}

// New returns a log keeping at most maxEntries timestamps per user. Zero keeps everything.
func New(maxEntries int) *Log {
	return &Log{maxEntries: maxEntries, entries: make(map[string][]time.Time)}
}

func (l *Log) Append(_ context.Context, userID string, ts time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := append(l.entries[userID], ts)
	if l.maxEntries > 0 && len(e) > l.maxEntries {
		e = append(e[:0:0], e[len(e)-l.maxEntries:]...)
	}
	l.entries[userID] = e
	return nil
}

// Entries returns a copy of the timestamps recorded for userID, oldest first.
func (l *Log) Entries(_ context.Context, userID string) ([]time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.entries[userID]
	out := make([]time.Time, len(e))
	copy(out, e)
	return out, nil
}
