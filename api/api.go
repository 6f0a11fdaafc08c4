// Package api builds request managers from configuration and exposes them to callers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	apiinternal "learn.requestlimiter/api/internal"
	"learn.requestlimiter/config"
	"learn.requestlimiter/internal/factory"
	"learn.requestlimiter/metrics"
	"learn.requestlimiter/types"
)

// janitor is implemented by in-memory limiters that can evict idle users.
type janitor interface {
	StartJanitor(ctx context.Context, interval time.Duration)
}

// clientCloser holds backend clients and implements io.Closer.
type clientCloser struct {
	redisClients    []*redis.Client
	memcacheClients []*memcache.Client
}

// Close shuts down all initialized backend clients held by the clientCloser.
func (c *clientCloser) Close() error {
	log.Info().Msg("API: Starting backend client shutdown")
	var errs []error
	for _, client := range c.redisClients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis client: %w", err))
			log.Error().Err(err).Msg("API: Error closing Redis client")
		}
	}
	for _, client := range c.memcacheClients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Memcache client: %w", err))
			log.Error().Err(err).Msg("API: Error closing Memcache client")
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info().Msg("API: Backend client shutdown complete")
	return nil
}

// clientPool shares one backend client per distinct connection target across limiters.
type clientPool struct {
	closer   *clientCloser
	redis    map[string]*redis.Client
	memcache map[string]*memcache.Client
}

func (p *clientPool) clientsFor(cfg config.LimiterConfig) (factory.BackendClients, error) {
	var clients factory.BackendClients
	if cfg.NeedsRedis() {
		id := fmt.Sprintf("%s/%d", cfg.RedisParams.Address, cfg.RedisParams.DB)
		client, ok := p.redis[id]
		if !ok {
			var err error
			client, err = apiinternal.InitRedisClient(cfg.RedisParams)
			if err != nil {
				return clients, err
			}
			p.redis[id] = client
			p.closer.redisClients = append(p.closer.redisClients, client)
		}
		clients.RedisClient = client
	}
	if cfg.Backend == config.Memcache {
		id := strings.Join(cfg.MemcacheParams.Addresses, ",")
		client, ok := p.memcache[id]
		if !ok {
			var err error
			client, err = apiinternal.InitMemcacheClient(cfg.MemcacheParams)
			if err != nil {
				return clients, err
			}
			p.memcache[id] = client
			p.closer.memcacheClients = append(p.closer.memcacheClients, client)
		}
		clients.MemcacheClient = client
	}
	return clients, nil
}

// NewManagersFromConfigPath loads the config at configPath and builds its managers.
func NewManagersFromConfigPath(ctx context.Context, configPath string, reg prometheus.Registerer) (map[string]*Manager, io.Closer, error) {
	log.Info().Str("config_path", configPath).Msg("API: Loading configuration")
	cfgFile, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Str("config_path", configPath).Msg("API: Initialization failed: Error loading configuration")
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return NewManagersFromConfig(ctx, cfgFile, reg)
}

// NewManagersFromConfig initializes the backend clients the limiters need and returns one
// Manager per limiter keyed by limiter key, plus an io.Closer for the backend clients.
//
// Configured users are registered, and in-memory limiters with an idle sweep interval run
// their janitor until ctx is done. A nil reg disables metric registration.
func NewManagersFromConfig(ctx context.Context, cfgFile *config.File, reg prometheus.Registerer) (map[string]*Manager, io.Closer, error) {
	pool := &clientPool{
		closer:   &clientCloser{},
		redis:    make(map[string]*redis.Client),
		memcache: make(map[string]*memcache.Client),
	}
	fail := func(err error) (map[string]*Manager, io.Closer, error) {
		_ = pool.closer.Close()
		return nil, nil, err
	}

	rm := metrics.NewRateLimitMetrics(reg)
	managers := make(map[string]*Manager, len(cfgFile.Limiters))

	log.Info().Int("count", len(cfgFile.Limiters)).Msg("API: Creating limiter instances")
	for _, cfg := range cfgFile.Limiters {
		clients, err := pool.clientsFor(cfg)
		if err != nil {
			return fail(fmt.Errorf("limiter '%s': %w", cfg.Key, err))
		}

		limiterFactory, err := factory.NewLimiterFactory(cfg)
		if err != nil {
			return fail(fmt.Errorf("limiter '%s': failed to get factory: %w", cfg.Key, err))
		}
		limiter, err := limiterFactory.CreateLimiter(cfg, clients)
		if err != nil {
			return fail(fmt.Errorf("limiter '%s': failed to create instance: %w", cfg.Key, err))
		}
		registry, err := factory.NewRegistry(cfg, clients)
		if err != nil {
			return fail(fmt.Errorf("limiter '%s': failed to create registry: %w", cfg.Key, err))
		}
		requestLog, err := factory.NewRequestLog(cfg, clients)
		if err != nil {
			return fail(fmt.Errorf("limiter '%s': failed to create request log: %w", cfg.Key, err))
		}

		opts := []ManagerOption{WithMetrics(rm)}
		if requestLog != nil {
			opts = append(opts, WithRequestLog(requestLog))
		}
		m := NewManager(cfg.Key, limiter, registry, opts...)

		for _, userID := range cfg.Registry.Users {
			if err := m.RegisterUser(ctx, userID); err != nil && !errors.Is(err, types.ErrUserExists) {
				return fail(fmt.Errorf("limiter '%s': failed to register user '%s': %w", cfg.Key, userID, err))
			}
		}

		if cfg.IdleSweepInterval > 0 {
			if j, ok := limiter.(janitor); ok {
				j.StartJanitor(ctx, cfg.IdleSweepInterval)
			} else {
				log.Warn().Str("limiter_key", cfg.Key).Str("algorithm", string(cfg.Algorithm)).Str("backend", string(cfg.Backend)).Msg("API: Idle sweep is not supported by this limiter, ignoring")
			}
		}

		managers[cfg.Key] = m
		log.Info().Str("limiter_key", cfg.Key).Str("algorithm", string(cfg.Algorithm)).Str("backend", string(cfg.Backend)).Msg("API: Limiter created successfully")
	}

	log.Info().Msg("API: All rate limiters initialized")
	return managers, pool.closer, nil
}
