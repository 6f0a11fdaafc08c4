package slidinglog_test

import (
	"testing"
	"time"

	"learn.requestlimiter/internal/slidinglog"
)

func TestDecide(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	ms := func(n int) time.Time { return base.Add(time.Duration(n) * time.Millisecond) }

	tests := []struct {
		name        string
		stored      []time.Time
		now         time.Time
		limit       int
		wantAllowed bool
		wantWait    time.Duration
		wantStored  int
	}{
		{"EmptyAdmits", nil, ms(0), 2, true, 0, 1},
		{"UnderLimitAdmits", []time.Time{ms(0)}, ms(10), 2, true, 0, 2},
		{"AtLimitRejects", []time.Time{ms(0), ms(10)}, ms(20), 2, false, 980 * time.Millisecond, 2},
		{"WindowStartIsPruned", []time.Time{ms(0), ms(10)}, ms(1010), 2, true, 0, 1},
		{"SameInstantLimitOne", []time.Time{ms(5)}, ms(5), 1, false, time.Second, 1},
		{"EpsilonFloor", []time.Time{ms(0)}, base.Add(999900 * time.Microsecond), 1, false, time.Millisecond, 1},
		{"BackwardsClockClamped", []time.Time{ms(500), ms(900)}, ms(100), 2, false, 600 * time.Millisecond, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stored, d := slidinglog.Decide(tc.stored, tc.now, time.Second, tc.limit, time.Millisecond)
			if d.Allowed != tc.wantAllowed || d.WaitTime != tc.wantWait {
				t.Fatalf("decision = %+v, want allowed=%v wait=%v", d, tc.wantAllowed, tc.wantWait)
			}
			if len(stored) != tc.wantStored {
				t.Fatalf("stored %d timestamps, want %d", len(stored), tc.wantStored)
			}
		})
	}
}
