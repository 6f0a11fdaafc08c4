package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"learn.requestlimiter/metrics"
	"learn.requestlimiter/types"
)

var unixEpoch = time.Unix(0, 0)

// Manager is the calling layer in front of a limiter. It validates input, checks the
// registry, reads the clock and records admissions in the request log.
type Manager struct {
	name       string
	limiter    types.Limiter
	registry   types.Registry
	requestLog types.RequestLog
	metrics    *metrics.RateLimitMetrics
	clock      func() time.Time
}

// ManagerOption is a function type for setting options on a Manager.
type ManagerOption func(*Manager)

// WithRequestLog records every admission in rl.
func WithRequestLog(rl types.RequestLog) ManagerOption {
	return func(m *Manager) {
		m.requestLog = rl
	}
}

// WithMetrics reports decisions and errors to rm.
func WithMetrics(rm *metrics.RateLimitMetrics) ManagerOption {
	return func(m *Manager) {
		if rm != nil {
			m.metrics = rm
		}
	}
}

// WithClock replaces time.Now as the source of request timestamps.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager wires limiter and registry under name, which labels logs and metrics.
func NewManager(name string, limiter types.Limiter, registry types.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		name:     name,
		limiter:  limiter,
		registry: registry,
		metrics:  metrics.NewRateLimitMetrics(nil),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Name() string {
	return m.name
}

// RegisterUser makes userID known to the registry. Registering twice returns types.ErrUserExists.
func (m *Manager) RegisterUser(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		m.metrics.RecordError(m.name, metrics.ErrorKindInvalidArg)
		return err
	}
	if err := m.registry.Register(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("limiter_key", m.name).Str("identifier", userID).Msg("Manager: User registered")
	return nil
}

// MakeRequest decides admission for userID at the current clock time.
func (m *Manager) MakeRequest(ctx context.Context, userID string) (types.Decision, error) {
	return m.MakeRequestAt(ctx, userID, m.clock())
}

// MakeRequestAt decides admission for userID at now.
//
// Input is validated before any state is touched. Unknown users get a *types.UnknownUserError
// and never reach the limiter. A failure to append an admission to the request log is logged
// and counted but does not change the decision.
//
// The request log keeps now as the caller supplied it. Limiters clamp a clock that moved
// backwards to their newest stored timestamp, so History can be out of order relative to what
// the limiter counted; it always reflects the order of the calls.
func (m *Manager) MakeRequestAt(ctx context.Context, userID string, now time.Time) (types.Decision, error) {
	if err := validateUserID(userID); err != nil {
		m.metrics.RecordError(m.name, metrics.ErrorKindInvalidArg)
		return types.Decision{}, err
	}
	if err := validateTime(now); err != nil {
		m.metrics.RecordError(m.name, metrics.ErrorKindInvalidArg)
		return types.Decision{}, err
	}
	if err := m.ensureKnown(ctx, userID); err != nil {
		return types.Decision{}, err
	}

	d, err := m.limiter.CheckAndRecord(ctx, userID, now)
	if err != nil {
		m.metrics.RecordError(m.name, metrics.ErrorKindBackend)
		log.Error().Err(err).Str("limiter_key", m.name).Str("identifier", userID).Msg("Manager: Limiter check failed")
		return types.Decision{}, fmt.Errorf("limiter '%s' check for '%s': %w", m.name, userID, err)
	}
	m.metrics.RecordDecision(m.name, d)

	if d.Allowed && m.requestLog != nil {
		if err := m.requestLog.Append(ctx, userID, now); err != nil {
			m.metrics.RecordError(m.name, metrics.ErrorKindRequestLog)
			log.Warn().Err(err).Str("limiter_key", m.name).Str("identifier", userID).Msg("Manager: Failed to record admitted request")
		}
	}
	return d, nil
}

// History returns the admitted request timestamps recorded for userID, oldest first.
// It is empty when no request log is configured.
func (m *Manager) History(ctx context.Context, userID string) ([]time.Time, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if err := m.ensureKnown(ctx, userID); err != nil {
		return nil, err
	}
	if m.requestLog == nil {
		return []time.Time{}, nil
	}
	entries, err := m.requestLog.Entries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("limiter '%s' history for '%s': %w", m.name, userID, err)
	}
	return entries, nil
}

func (m *Manager) ensureKnown(ctx context.Context, userID string) error {
	ok, err := m.registry.Exists(ctx, userID)
	if err != nil {
		m.metrics.RecordError(m.name, metrics.ErrorKindRegistry)
		return fmt.Errorf("limiter '%s' registry lookup for '%s': %w", m.name, userID, err)
	}
	if !ok {
		m.metrics.RecordError(m.name, metrics.ErrorKindUnknownUser)
		log.Debug().Str("limiter_key", m.name).Str("identifier", userID).Msg("Manager: Unknown user")
		return &types.UnknownUserError{UserID: userID}
	}
	return nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return types.NewInvalidArgumentError("user_id", "must not be empty")
	}
	return nil
}

func validateTime(now time.Time) error {
	if now.IsZero() {
		return types.NewInvalidArgumentError("now", "must be set")
	}
	if now.Before(unixEpoch) {
		return types.NewInvalidArgumentError("now", "must not be before the Unix epoch")
	}
	return nil
}
