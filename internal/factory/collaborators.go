package factory

import (
	"fmt"

	"learn.requestlimiter/config"
	reginmemory "learn.requestlimiter/internal/registry/inmemory"
	regredis "learn.requestlimiter/internal/registry/redis"
	rlinmemory "learn.requestlimiter/internal/requestlog/inmemory"
	rlredis "learn.requestlimiter/internal/requestlog/redis"
	"learn.requestlimiter/types"
)

// NewRegistry creates the user registry selected by cfg.Registry.
// Configured users are seeded by the caller so the Redis set is not written here.
func NewRegistry(cfg config.LimiterConfig, clients BackendClients) (types.Registry, error) {
	switch cfg.Registry.Backend {
	case config.InMemory:
		return reginmemory.New(), nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, missingClient(config.Redis, cfg.Key)
		}
		return regredis.New(clients.RedisClient, cfg.Key), nil
	default:
		return nil, fmt.Errorf("unsupported registry backend '%s' for key '%s'", cfg.Registry.Backend, cfg.Key)
	}
}

// NewRequestLog creates the request log selected by cfg.RequestLog. It returns nil, nil for the none backend.
func NewRequestLog(cfg config.LimiterConfig, clients BackendClients) (types.RequestLog, error) {
	switch cfg.RequestLog.Backend {
	case config.None:
		return nil, nil
	case config.InMemory:
		return rlinmemory.New(cfg.RequestLog.MaxEntries), nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, missingClient(config.Redis, cfg.Key)
		}
		return rlredis.New(clients.RedisClient, cfg.Key, cfg.RequestLog.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unsupported request log backend '%s' for key '%s'", cfg.RequestLog.Backend, cfg.Key)
	}
}
