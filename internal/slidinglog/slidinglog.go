// Package slidinglog holds the sliding log admission rule shared by backends that keep a user's
// timestamps as a plain slice.
package slidinglog

import (
	"time"

	"learn.requestlimiter/types"
)

// Decide applies one admission check to timestamps, which must be in non-decreasing order.
// It returns the timestamps to store afterwards and the decision. Rejections never add a timestamp.
func Decide(timestamps []time.Time, now time.Time, window time.Duration, limit int, epsilon time.Duration) ([]time.Time, types.Decision) {
	if n := len(timestamps); n > 0 && now.Before(timestamps[n-1]) {
		now = timestamps[n-1]
	}

	windowStart := now.Add(-window)
	i := 0
	for i < len(timestamps) && !timestamps[i].After(windowStart) {
		i++
	}
	kept := timestamps[i:]

	if len(kept) < limit {
		return append(kept, now), types.Admit()
	}
	return kept, types.Reject(kept[0].Add(window).Sub(now), epsilon)
}
