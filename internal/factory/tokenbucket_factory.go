package factory

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"learn.requestlimiter/config"
	tbinmemory "learn.requestlimiter/internal/tokenbucket/inmemory"
	"learn.requestlimiter/types"
)

type TokenBucketFactory struct{}

func NewTokenBucketFactory() (*TokenBucketFactory, error) {
	return &TokenBucketFactory{}, nil
}

func (*TokenBucketFactory) CreateLimiter(cfg config.LimiterConfig, _ BackendClients) (types.Limiter, error) {
	if cfg.TokenBucketParams == nil {
		err := fmt.Errorf("token bucket parameters are missing in config for key '%s'", cfg.Key)
		log.Error().Err(err).Str("limiter_key", cfg.Key).Msg("Factory(TokenBucket): Creation failed")
		return nil, err
	}

	switch cfg.Backend {
	case config.InMemory:
		log.Debug().Str("limiter_key", cfg.Key).Float64("rate", cfg.TokenBucketParams.Rate).Int("capacity", cfg.TokenBucketParams.Capacity).Msg("Factory(TokenBucket): Creating in-memory limiter")
		return tbinmemory.NewLimiter(cfg.Key, cfg.TokenBucketParams.Rate, cfg.TokenBucketParams.Capacity, cfg.Epsilon), nil
	default:
		return nil, fmt.Errorf("unsupported backend type '%s' for token bucket for key '%s'", cfg.Backend, cfg.Key)
	}
}
