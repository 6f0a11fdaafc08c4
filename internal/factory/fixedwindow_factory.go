package factory

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"learn.requestlimiter/config"
	fcinmemory "learn.requestlimiter/internal/fixedcounter/inmemory"
	fcredis "learn.requestlimiter/internal/fixedcounter/redis"
	"learn.requestlimiter/types"
)

// FixedWindowFactory creates limiters using the Fixed Window Counter algorithm.
type FixedWindowFactory struct{}

// NewFixedWindowFactory returns a new FixedWindowFactory instance.
func NewFixedWindowFactory() (*FixedWindowFactory, error) {
	return &FixedWindowFactory{}, nil
}

// CreateLimiter creates a Fixed Window Counter limiter based on the configuration and clients.
func (f *FixedWindowFactory) CreateLimiter(cfg config.LimiterConfig, clients BackendClients) (types.Limiter, error) {
	if cfg.WindowParams == nil {
		err := fmt.Errorf("fixed window counter parameters are missing in config for key '%s'", cfg.Key)
		log.Error().Err(err).Str("limiter_key", cfg.Key).Msg("Factory(FixedWindowCounter): Creation failed")
		return nil, err
	}
	window, limit := cfg.WindowParams.Window, cfg.WindowParams.Limit
	log.Debug().Str("limiter_key", cfg.Key).Str("backend", string(cfg.Backend)).Dur("window", window).Int64("limit", limit).Msg("Factory(FixedWindowCounter): Creating limiter")

	switch cfg.Backend {
	case config.InMemory:
		return fcinmemory.NewLimiter(cfg.Key, window, limit, cfg.Epsilon), nil
	case config.Redis:
		if clients.RedisClient == nil {
			return nil, missingClient(cfg.Backend, cfg.Key)
		}
		return fcredis.NewLimiter(clients.RedisClient, cfg.Key, window, limit, cfg.Epsilon), nil
	default:
		return nil, fmt.Errorf("unsupported backend type '%s' for fixed window counter for key '%s'", cfg.Backend, cfg.Key)
	}
}
