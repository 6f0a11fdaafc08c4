// Package regredis keeps the set of registered users in a Redis set shared between processes.
package regredis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"learn.requestlimiter/types"
)

// Registry stores user ids in the Redis set "<key>:registry". Limiter state and request logs
// live under "<key>:<component>:<user>", so no user id can collide with the set.
type Registry struct {
	client *redis.Client
	setKey string
}

// New returns a Redis-backed registry for the limiter named key.
func New(client *redis.Client, key string) *Registry {
	return &Registry{client: client, setKey: key + ":registry"}
}

func (r *Registry) Exists(ctx context.Context, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.setKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis registry lookup for '%s': %w", userID, err)
	}
	return ok, nil
}

// Register adds userID, returning types.ErrUserExists if it is already a member.
func (r *Registry) Register(ctx context.Context, userID string) error {
	added, err := r.client.SAdd(ctx, r.setKey, userID).Result()
	if err != nil {
		return fmt.Errorf("redis registry add for '%s': %w", userID, err)
	}
	if added == 0 {
		return types.ErrUserExists
	}
	return nil
}
