// Package types defines common types and interfaces used throughout the request limiter.
package types

import (
	"context"
	"time"
)

// DefaultEpsilon is the smallest wait time reported alongside a rejection.
const DefaultEpsilon = time.Millisecond

// Decision is the outcome of a single admission check.
type Decision struct {
	// Allowed reports whether the request was admitted and recorded.
	Allowed bool
	// WaitTime is how long the caller should wait before retrying. Zero when Allowed.
	WaitTime time.Duration
}

// Admit returns an admitting Decision.
func Admit() Decision {
	return Decision{Allowed: true}
}

// Reject returns a rejecting Decision whose wait is floored at epsilon.
func Reject(wait, epsilon time.Duration) Decision {
	if wait < epsilon {
		wait = epsilon
	}
	return Decision{Allowed: false, WaitTime: wait}
}

// Limiter is the interface that all rate limiting algorithms must implement.
type Limiter interface {
	// CheckAndRecord decides whether a request from userID at now is admitted.
	// Admitted requests are recorded; rejected requests leave the state untouched.
	CheckAndRecord(ctx context.Context, userID string, now time.Time) (Decision, error)
}

// Registry confirms that a user is known before requests are admitted for it.
type Registry interface {
	Exists(ctx context.Context, userID string) (bool, error)
	Register(ctx context.Context, userID string) error
}

// RequestLog records admitted request timestamps. It is never consulted by a Limiter.
type RequestLog interface {
	Append(ctx context.Context, userID string, ts time.Time) error
	Entries(ctx context.Context, userID string) ([]time.Time, error)
}
