package factory

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"learn.requestlimiter/config"
	slinmemory "learn.requestlimiter/internal/slidinglog/inmemory"
	slmemcache "learn.requestlimiter/internal/slidinglog/memcache"
	slredis "learn.requestlimiter/internal/slidinglog/redis"
	"learn.requestlimiter/types"
)

// SlidingLogFactory creates limiters using the sliding log algorithm.
type SlidingLogFactory struct{}

func NewSlidingLogFactory() (*SlidingLogFactory, error) {
	return &SlidingLogFactory{}, nil
}

func (*SlidingLogFactory) CreateLimiter(cfg config.LimiterConfig, clients BackendClients) (types.Limiter, error) {
	if cfg.WindowParams == nil {
		err := fmt.Errorf("sliding log parameters are missing in config for key '%s'", cfg.Key)
		log.Error().Err(err).Str("limiter_key", cfg.Key).Msg("Factory(SlidingLog): Creation failed")
		return nil, err
	}
	window, limit := cfg.WindowParams.Window, cfg.WindowParams.Limit
	log.Debug().Str("limiter_key", cfg.Key).Str("backend", string(cfg.Backend)).Dur("window", window).Int64("limit", limit).Msg("Factory(SlidingLog): Creating limiter")

	switch cfg.Backend {
	case config.InMemory:
		return slinmemory.NewLimiter(cfg.Key, window, limit, slinmemory.WithEpsilon(cfg.Epsilon), slinmemory.WithShards(cfg.Shards)), nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, missingClient(cfg.Backend, cfg.Key)
		}
		return slredis.NewLimiter(clients.RedisClient, cfg.Key, window, limit, slredis.WithEpsilon(cfg.Epsilon)), nil
	case config.Memcache:
		if clients.MemcacheClient == nil {
			return nil, missingClient(cfg.Backend, cfg.Key)
		}
		return slmemcache.NewLimiter(clients.MemcacheClient, cfg.Key, window, limit, slmemcache.WithEpsilon(cfg.Epsilon)), nil
	default:
		return nil, fmt.Errorf("unsupported backend type '%s' for sliding log for key '%s'", cfg.Backend, cfg.Key)
	}
}
