// Package reginmemory keeps the set of registered users in process memory.
package reginmemory

import (
	"context"
	"sync"

	"learn.requestlimiter/types"
)

// Registry is an in-memory user registry. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// New returns a registry that already knows users.
func New(users ...string) *Registry {
	r := &Registry{users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		r.users[u] = struct{}{}
	}
	return r
}

func (r *Registry) Exists(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok, nil
}

// Register adds userID, returning types.ErrUserExists if it is already known.
func (r *Registry) Register(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; ok {
		return types.ErrUserExists
	}
	r.users[userID] = struct{}{}
	return nil
}
