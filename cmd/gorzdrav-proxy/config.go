package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/client"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/logging"
)

// config is the process configuration read from the environment.
type config struct {
	Port            string
	RedisURL        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Client          client.Config
	Log             logging.Config
}

// loadConfig reads the environment on top of the library defaults.
func loadConfig() (config, error) {
	cfg := config{
		Port:            getEnv("PORT", "8000"),
		RedisURL:        getEnv("REDIS_URL", ""),
		Client:          client.DefaultConfig(),
		Log:             logging.DefaultConfig(),
		RequestTimeout:  2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}

	cfg.Client.BaseURL = getEnv("UPSTREAM_URL", client.DefaultBaseURL)
	cfg.Log.Level = logging.LogLevel(getEnv("LOG_LEVEL", string(logging.LevelInfo)))

	var err error
	if cfg.Client.Pool.Size, err = getEnvInt("POOL_SIZE", cfg.Client.Pool.Size); err != nil {
		return cfg, err
	}
	if cfg.Client.Pool.QueueCapacity, err = getEnvInt("QUEUE_CAPACITY", cfg.Client.Pool.QueueCapacity); err != nil {
		return cfg, err
	}
	if cfg.Client.Retry.MaxAttempts, err = getEnvInt("RETRY_ATTEMPTS", cfg.Client.Retry.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Client.Retry.Delay, err = getEnvDuration("RETRY_DELAY", cfg.Client.Retry.Delay); err != nil {
		return cfg, err
	}
	if cfg.Client.Cache.TTL, err = getEnvDuration("CACHE_TTL", cfg.Client.Cache.TTL); err != nil {
		return cfg, err
	}
	if cfg.Client.Cache.SingleFlight, err = getEnvBool("SINGLE_FLIGHT", cfg.Client.Cache.SingleFlight); err != nil {
		return cfg, err
	}
	if cfg.Client.RateLimit, err = getEnvFloat("RATE_LIMIT", 0); err != nil {
		return cfg, err
	}
	if cfg.Log.Pretty, err = getEnvBool("LOG_PRETTY", false); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("300").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
