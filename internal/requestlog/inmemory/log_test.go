package rlinmemory_test

import (
	"context"
	"testing"
	"time"

	rlinmemory "learn.requestlimiter/internal/requestlog/inmemory"
)

var base = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func TestLog_AppendAndEntries(t *testing.T) {
	ctx := context.Background()
	l := rlinmemory.New(0)

	for i := 0; i < 3; i++ {
		if err := l.Append(ctx, "user1", base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	got, err := l.Entries(ctx, "user1")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(got) != 3 || !got[0].Equal(base) || !got[2].Equal(base.Add(2*time.Second)) {
		t.Fatalf("Entries = %v", got)
	}

	// Callers get a copy.
	got[0] = time.Time{}
	again, _ := l.Entries(ctx, "user1")
	if !again[0].Equal(base) {
		t.Fatal("Entries exposed internal storage")
	}

	if empty, _ := l.Entries(ctx, "nobody"); len(empty) != 0 {
		t.Fatalf("Entries for unknown user = %v, want empty", empty)
	}
}

func TestLog_MaxEntries(t *testing.T) {
	ctx := context.Background()
	l := rlinmemory.New(2)

	for i := 0; i < 5; i++ {
		_ = l.Append(ctx, "user1", base.Add(time.Duration(i)*time.Second))
	}
	got, _ := l.Entries(ctx, "user1")
	if len(got) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(got))
	}
	if !got[0].Equal(base.Add(3*time.Second)) || !got[1].Equal(base.Add(4*time.Second)) {
		t.Fatalf("Entries = %v, want the two newest", got)
	}
}
