// Package client provides the request coordinator: the single entry point
// that callers use instead of touching sessions, the queue or the cache.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/cache"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/pool"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

// DefaultBaseURL is the Gorzdrav API root.
const DefaultBaseURL = "https://gorzdrav.spb.ru/_api/api/v2"

// Client coordinates the worker pool, the retrying fetcher and the cache.
type Client struct {
	pool      *pool.Pool
	cache     *cache.Manager
	fetcher   *upstream.Fetcher
	config    Config
	logger    zerolog.Logger
	closeOnce sync.Once
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the upstream API root, without trailing slash.
	BaseURL string

	// Pool sizing
	Pool pool.Config

	// Retry and pacing for every upstream request
	Retry upstream.RetryConfig

	// Session headers and timeout
	Session upstream.SessionConfig

	// RateLimit caps upstream requests per second across all sessions.
	// 0 disables the limiter.
	RateLimit float64

	// Caching
	Cache cache.Config

	// Redis, when set, backs the cache instead of process memory.
	Redis          *redis.Client
	CacheNamespace string

	// SessionFactory overrides how worker sessions are created (for testing).
	SessionFactory pool.SessionFactory
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Pool:           pool.DefaultConfig(),
		Retry:          upstream.DefaultRetryConfig(),
		Session:        upstream.DefaultSessionConfig(),
		Cache:          cache.DefaultConfig(),
		CacheNamespace: "gorzdrav",
	}
}

// New creates the client and starts its worker pool.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Pool.Size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0 (got %d)", cfg.Pool.Size)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := log.With().Str("component", "gorzdrav-client").Logger()

	factory := cfg.SessionFactory
	if factory == nil {
		sessionCfg := cfg.Session
		if cfg.RateLimit > 0 {
			// one limiter shared by every session
			sessionCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
		}
		factory = func(workerID int) (upstream.Session, error) {
			return upstream.NewHTTPSession(sessionCfg), nil
		}
	}

	var store cache.Store
	if cfg.Redis != nil {
		store = cache.NewRedisStore(cfg.Redis, cfg.CacheNamespace)
	} else {
		store = cache.NewMemoryStore()
	}

	p, err := pool.New(cfg.Pool, factory)
	if err != nil {
		return nil, fmt.Errorf("start pool: %w", err)
	}

	logger.Info().
		Str("base_url", cfg.BaseURL).
		Int("pool_size", cfg.Pool.Size).
		Int("queue_capacity", cfg.Pool.QueueCapacity).
		Dur("cache_ttl", cfg.Cache.TTL).
		Bool("redis_cache", cfg.Redis != nil).
		Msg("Client started")

	return &Client{
		pool:    p,
		cache:   cache.NewManager(store, cfg.Cache),
		fetcher: upstream.NewFetcher(cfg.Retry),
		config:  cfg,
		logger:  logger,
	}, nil
}

// Submit runs job on a free worker and returns its result. Errors are
// returned unchanged.
func (c *Client) Submit(ctx context.Context, job pool.Job) (any, error) {
	return c.pool.Submit(ctx, job)
}

// CachedSubmit returns the cached JSON result for (endpoint, params), or
// submits job on a miss and caches its JSON-encoded result on success.
func (c *Client) CachedSubmit(ctx context.Context, endpoint string, params map[string]any, job pool.Job) (json.RawMessage, error) {
	return c.cache.Do(ctx, endpoint, params, func(ctx context.Context) ([]byte, error) {
		v, err := c.Submit(ctx, job)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
}

// Get fetches path (relative to BaseURL) on a worker session through the
// retrying fetcher and returns the envelope result.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return Do(ctx, c, c.GetJob(path))
}

// GetJob returns the job function that fetches path through the retrying
// fetcher.
func (c *Client) GetJob(path string) func(ctx context.Context, s upstream.Session) (json.RawMessage, error) {
	url := c.URL(path)
	return func(ctx context.Context, s upstream.Session) (json.RawMessage, error) {
		return c.fetcher.Get(ctx, s, url)
	}
}

// URL joins path to the configured base URL.
func (c *Client) URL(path string) string {
	return c.config.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// Cache returns the cache manager.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// Stats returns pool bookkeeping.
func (c *Client) Stats() pool.Stats {
	return c.pool.Stats()
}

// Close shuts the pool down and waits for workers until ctx is done.
// It is safe to call more than once.
func (c *Client) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		start := time.Now()
		c.pool.Shutdown(ctx)
		c.logger.Info().Dur("duration", time.Since(start)).Msg("Client closed")
	})
}

// SetSleep replaces the fetcher's wait function (for testing).
func (c *Client) SetSleep(sleep upstream.SleepFunc) {
	c.fetcher.SetSleep(sleep)
}

// Do submits fn as a job and returns its typed result.
func Do[T any](ctx context.Context, c *Client, fn func(ctx context.Context, s upstream.Session) (T, error)) (T, error) {
	var zero T
	v, err := c.Submit(ctx, pool.JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		return fn(ctx, s)
	}))
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected job result type %T", v)
	}
	return typed, nil
}

// CachedDo is the typed, cached form of Do.
func CachedDo[T any](ctx context.Context, c *Client, endpoint string, params map[string]any, fn func(ctx context.Context, s upstream.Session) (T, error)) (T, error) {
	return cache.Cached(ctx, c.cache, endpoint, params, func(ctx context.Context) (T, error) {
		return Do(ctx, c, fn)
	})
}
