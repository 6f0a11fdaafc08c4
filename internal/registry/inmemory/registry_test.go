package reginmemory_test

import (
	"context"
	"errors"
	"testing"

	reginmemory "learn.requestlimiter/internal/registry/inmemory"
	"learn.requestlimiter/types"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := reginmemory.New("alice")

	if ok, err := r.Exists(ctx, "alice"); err != nil || !ok {
		t.Fatalf("alice should exist (ok=%v, err=%v)", ok, err)
	}
	if ok, _ := r.Exists(ctx, "bob"); ok {
		t.Fatal("bob should not exist yet")
	}
	if err := r.Register(ctx, "bob"); err != nil {
		t.Fatalf("Register(bob) failed: %v", err)
	}
	if ok, _ := r.Exists(ctx, "bob"); !ok {
		t.Fatal("bob should exist after Register")
	}
	if err := r.Register(ctx, "bob"); !errors.Is(err, types.ErrUserExists) {
		t.Fatalf("duplicate Register: got %v, want ErrUserExists", err)
	}
}
