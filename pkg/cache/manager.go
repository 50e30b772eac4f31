package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Producer computes a value on a cache miss. It returns the JSON encoding of
// the value.
type Producer func(ctx context.Context) ([]byte, error)

// Config holds the cache manager configuration.
type Config struct {
	// TTL is how long a successful result stays cached.
	TTL time.Duration

	// SingleFlight coalesces concurrent misses for the same key into one
	// producer call. When false, concurrent misses each invoke the producer.
	SingleFlight bool
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:          5 * time.Minute,
		SingleFlight: false,
	}
}

// Manager short-circuits producers with cached results.
type Manager struct {
	store  Store
	config Config
	group  *singleflight.Group
	now    func() time.Time
	logger zerolog.Logger
}

// NewManager creates a cache manager over store.
func NewManager(store Store, cfg Config) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}

	m := &Manager{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: log.With().Str("component", "cache").Logger(),
	}
	if cfg.SingleFlight {
		m.group = &singleflight.Group{}
	}
	return m
}

// SetClock replaces the time source used to stamp entries (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Do returns the cached value for (endpoint, params) or, on a miss, calls
// produce and caches its result. Errors from produce are returned unchanged
// and never cached. Store failures degrade to a miss.
func (m *Manager) Do(ctx context.Context, endpoint string, params map[string]any, produce Producer) ([]byte, error) {
	key := Key(endpoint, params)

	if data, ok := m.lookup(ctx, key); ok {
		return data, nil
	}

	if m.group == nil {
		return m.fill(ctx, key, produce)
	}

	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		// another caller may have filled the key while we waited for the lock
		if data, ok := m.lookup(ctx, key); ok {
			return data, nil
		}
		return m.fill(ctx, key, produce)
	})
	if shared {
		SharedMisses.Inc()
	}
	if err != nil {
		// the shared fill ran on another caller's context
		if isContextErr(err) && ctx.Err() == nil {
			m.logger.Debug().Str("key", key).Msg("Shared fill cancelled, refilling")
			return m.fill(ctx, key, produce)
		}
		return nil, err
	}
	return v.([]byte), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Invalidate removes the cached value for (endpoint, params).
func (m *Manager) Invalidate(ctx context.Context, endpoint string, params map[string]any) error {
	return m.store.Delete(ctx, Key(endpoint, params))
}

func (m *Manager) lookup(ctx context.Context, key string) ([]byte, bool) {
	entry, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	m.logger.Debug().Str("key", key).Msg("Cache hit")
	return entry.Data, true
}

func (m *Manager) fill(ctx context.Context, key string, produce Producer) ([]byte, error) {
	m.logger.Debug().Str("key", key).Msg("Cache miss")

	data, err := produce(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	entry := &Entry{
		Data:     data,
		Expires:  now.Add(m.config.TTL),
		CachedAt: now,
	}
	if err := m.store.Set(ctx, key, entry); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
	} else {
		m.logger.Debug().
			Str("key", key).
			Dur("ttl", m.config.TTL).
			Msg("Cached result")
	}

	return data, nil
}

// Cached is the typed form of Manager.Do. Values are cached as JSON. An
// entry that no longer decodes into T is dropped and produced again.
func Cached[T any](ctx context.Context, m *Manager, endpoint string, params map[string]any, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var produced T
	var fresh bool

	encode := func(ctx context.Context) ([]byte, error) {
		v, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		produced, fresh = v, true
		return json.Marshal(v)
	}

	data, err := m.Do(ctx, endpoint, params, encode)
	if err != nil {
		return zero, err
	}
	if fresh {
		return produced, nil
	}

	var v T
	decodeErr := json.Unmarshal(data, &v)
	if decodeErr == nil {
		return v, nil
	}
	CacheErrors.WithLabelValues("decode").Inc()
	m.logger.Warn().
		Err(fmt.Errorf("%w: %v", ErrInvalidEntry, decodeErr)).
		Str("endpoint", endpoint).
		Msg("Dropping undecodable cache entry")

	key := Key(endpoint, params)
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Cache delete error")
	}
	if _, err := m.fill(ctx, key, encode); err != nil {
		return zero, err
	}
	return produced, nil
}
