// Package factory builds limiters and their collaborators from configuration.
package factory

import (
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"

	"learn.requestlimiter/config"
	"learn.requestlimiter/types"
)

// BackendClients holds initialized backend client instances shared by all limiters.
type BackendClients struct {
	RedisClient    *redis.Client
	MemcacheClient *memcache.Client
}

// LimiterFactory creates a limiter for one algorithm.
type LimiterFactory interface {
	CreateLimiter(cfg config.LimiterConfig, clients BackendClients) (types.Limiter, error)
}

// NewLimiterFactory returns the factory for the configured algorithm.
func NewLimiterFactory(cfg config.LimiterConfig) (LimiterFactory, error) {
	switch cfg.Algorithm {
	case config.SlidingLog:
		return NewSlidingLogFactory()
	case config.FixedWindowCounter:
		return NewFixedWindowFactory()
	case config.TokenBucket:
		return NewTokenBucketFactory()
	default:
		return nil, fmt.Errorf("unsupported algorithm type '%s' for key '%s'", cfg.Algorithm, cfg.Key)
	}
}

func missingClient(backend config.BackendType, key string) error {
	return fmt.Errorf("%s client is required but not provided for %s backend for key '%s'", backend, backend, key)
}
