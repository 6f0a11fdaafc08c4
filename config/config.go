package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// AlgorithmType represents the type of rate limiting algorithm.
type AlgorithmType string

const (
	SlidingLog         AlgorithmType = "sliding_log"
	FixedWindowCounter AlgorithmType = "fixed_window_counter"
	TokenBucket        AlgorithmType = "token_bucket"
)

// BackendType represents the storage backend.
type BackendType string

const (
	InMemory BackendType = "in_memory"
	Redis    BackendType = "redis"
	Memcache BackendType = "memcache"
	// None disables an optional collaborator such as the request log.
	None BackendType = "none"
)

const (
	DefaultWindow = time.Second
	DefaultLimit  = 2
	DefaultShards = 32
)

// File is the top-level structure of the configuration file.
type File struct {
	LogLevel string          `yaml:"log_level,omitempty"`
	Limiters []LimiterConfig `yaml:"limiters"`
}

// LimiterConfig holds the configuration for a single rate limiter instance.
type LimiterConfig struct {
	Algorithm AlgorithmType `yaml:"algorithm"`
	Backend   BackendType   `yaml:"backend"`
	Key       string        `yaml:"key"`

	WindowParams      *WindowConfig      `yaml:"window_params,omitempty"`
	TokenBucketParams *TokenBucketConfig `yaml:"token_bucket_params,omitempty"`

	// Epsilon is the minimum wait reported with a rejection.
	Epsilon time.Duration `yaml:"epsilon,omitempty"`
	// Shards is the lock shard count of the in-memory sliding log.
	Shards int `yaml:"shards,omitempty"`
	// IdleSweepInterval enables background eviction of idle users for in-memory limiters.
	IdleSweepInterval time.Duration `yaml:"idle_sweep_interval,omitempty"`

	Registry   RegistryConfig   `yaml:"registry"`
	RequestLog RequestLogConfig `yaml:"request_log"`

	RedisParams    *RedisBackendConfig    `yaml:"redis_params,omitempty"`
	MemcacheParams *MemcacheBackendConfig `yaml:"memcache_params,omitempty"`
}

// WindowConfig holds the window length and the number of requests admitted inside it.
type WindowConfig struct {
	Window time.Duration `yaml:"window"`
	Limit  int64         `yaml:"limit"`
}

// TokenBucketConfig holds parameters for the Token Bucket algorithm.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"`
	Capacity int     `yaml:"capacity"`
}

// RegistryConfig selects the user registry and the users known at startup.
type RegistryConfig struct {
	Backend BackendType `yaml:"backend,omitempty"`
	Users   []string    `yaml:"users,omitempty"`
}

// RequestLogConfig selects where admitted requests are recorded.
type RequestLogConfig struct {
	Backend BackendType `yaml:"backend,omitempty"`
	// MaxEntries caps the entries kept per user. Zero keeps everything.
	MaxEntries int `yaml:"max_entries,omitempty"`
}

// RedisBackendConfig holds parameters for the Redis backend.
type RedisBackendConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// MemcacheBackendConfig holds parameters for the Memcache backend.
type MemcacheBackendConfig struct {
	Addresses []string `yaml:"addresses"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Load reads, defaults and validates the YAML config at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML config data, applies defaults and validates every limiter.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(f.Limiters) == 0 {
		return nil, &ValidationError{Field: "limiters", Message: "at least one limiter is required"}
	}
	seen := make(map[string]bool, len(f.Limiters))
	for i := range f.Limiters {
		cfg := &f.Limiters[i]
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if seen[cfg.Key] {
			return nil, &ValidationError{Field: "key", Message: fmt.Sprintf("duplicate limiter key %q", cfg.Key)}
		}
		seen[cfg.Key] = true
	}
	return &f, nil
}

// SetDefaults fills zero values with the documented defaults.
func (c *LimiterConfig) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = SlidingLog
	}
	if c.Backend == "" {
		c.Backend = InMemory
	}
	if c.Algorithm != TokenBucket {
		if c.WindowParams == nil {
			c.WindowParams = &WindowConfig{}
		}
		if c.WindowParams.Window == 0 {
			c.WindowParams.Window = DefaultWindow
		}
		if c.WindowParams.Limit == 0 {
			c.WindowParams.Limit = DefaultLimit
		}
	}
	if c.Epsilon == 0 {
		c.Epsilon = time.Millisecond
	}
	if c.Shards == 0 {
		c.Shards = DefaultShards
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = InMemory
	}
	if c.RequestLog.Backend == "" {
		c.RequestLog.Backend = InMemory
	}
}

// Validate reports the first invalid field of the limiter config.
func (c *LimiterConfig) Validate() error {
	if c.Key == "" {
		return &ValidationError{Field: "key", Message: "must not be empty"}
	}
	switch c.Algorithm {
	case SlidingLog, FixedWindowCounter:
		if c.WindowParams == nil {
			return &ValidationError{Field: c.Key + ".window_params", Message: "required"}
		}
		if c.WindowParams.Window <= 0 {
			return &ValidationError{Field: c.Key + ".window_params.window", Message: "must be positive"}
		}
		if c.WindowParams.Limit < 1 {
			return &ValidationError{Field: c.Key + ".window_params.limit", Message: "must be at least 1"}
		}
	case TokenBucket:
		if c.TokenBucketParams == nil {
			return &ValidationError{Field: c.Key + ".token_bucket_params", Message: "required"}
		}
		if c.TokenBucketParams.Rate <= 0 || c.TokenBucketParams.Capacity < 1 {
			return &ValidationError{Field: c.Key + ".token_bucket_params", Message: "rate must be positive and capacity at least 1"}
		}
	default:
		return &ValidationError{Field: c.Key + ".algorithm", Message: fmt.Sprintf("unsupported algorithm %q", c.Algorithm)}
	}
	if c.Epsilon <= 0 {
		return &ValidationError{Field: c.Key + ".epsilon", Message: "must be positive"}
	}
	if c.Shards < 1 {
		return &ValidationError{Field: c.Key + ".shards", Message: "must be at least 1"}
	}
	if err := c.validateBackend("backend", c.Backend, false); err != nil {
		return err
	}
	if !algorithmSupports(c.Algorithm, c.Backend) {
		return &ValidationError{Field: c.Key + ".backend", Message: fmt.Sprintf("algorithm %q does not support backend %q", c.Algorithm, c.Backend)}
	}
	if err := c.validateBackend("registry.backend", c.Registry.Backend, false); err != nil {
		return err
	}
	if err := c.validateBackend("request_log.backend", c.RequestLog.Backend, true); err != nil {
		return err
	}
	if c.RequestLog.MaxEntries < 0 {
		return &ValidationError{Field: c.Key + ".request_log.max_entries", Message: "must not be negative"}
	}
	return nil
}

func (c *LimiterConfig) validateBackend(field string, b BackendType, allowNone bool) error {
	switch b {
	case InMemory:
		return nil
	case Redis:
		if c.RedisParams == nil || c.RedisParams.Address == "" {
			return &ValidationError{Field: c.Key + ".redis_params", Message: field + " is redis but redis_params.address is missing"}
		}
		return nil
	case Memcache:
		if field != "backend" {
			break
		}
		if c.MemcacheParams == nil || len(c.MemcacheParams.Addresses) == 0 {
			return &ValidationError{Field: c.Key + ".memcache_params", Message: "backend is memcache but memcache_params.addresses is empty"}
		}
		return nil
	case None:
		if allowNone {
			return nil
		}
	}
	return &ValidationError{Field: c.Key + "." + field, Message: fmt.Sprintf("unsupported backend %q", b)}
}

// algorithmSupports reports whether a limiter backend implements the algorithm.
func algorithmSupports(a AlgorithmType, b BackendType) bool {
	switch a {
	case SlidingLog:
		return b == InMemory || b == Redis || b == Memcache
	case FixedWindowCounter:
		return b == InMemory || b == Redis
	case TokenBucket:
		return b == InMemory
	}
	return false
}

// NeedsRedis reports whether any component of the limiter uses Redis.
func (c *LimiterConfig) NeedsRedis() bool {
	return c.Backend == Redis || c.Registry.Backend == Redis || c.RequestLog.Backend == Redis
}
