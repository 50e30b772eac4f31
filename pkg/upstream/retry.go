package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// minPacingDelay is the threshold at or below which the pacing delay is skipped.
const minPacingDelay = 50 * time.Millisecond

// RetryConfig holds the configuration for the retrying fetcher.
type RetryConfig struct {
	// MaxAttempts is the attempt budget, including the first request.
	MaxAttempts int

	// Delay is waited before every attempt, not only retries. Values of
	// 50ms or less disable it.
	Delay time.Duration

	// InitialBackoff is the wait after the first failed attempt; it doubles
	// after every further failure.
	InitialBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		Delay:          1 * time.Second,
		InitialBackoff: 1 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher executes one logical request against a Session with pacing,
// exponential backoff on transport failures and envelope validation.
type Fetcher struct {
	config RetryConfig
	sleep  SleepFunc
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher. Zero fields of cfg fall back to defaults.
func NewFetcher(cfg RetryConfig) *Fetcher {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}

	return &Fetcher{
		config: cfg,
		sleep:  sleepContext,
		logger: log.With().Str("component", "upstream-fetcher").Logger(),
	}
}

// SetSleep replaces the wait function (for testing).
func (f *Fetcher) SetSleep(sleep SleepFunc) {
	f.sleep = sleep
}

// Config returns the effective retry configuration.
func (f *Fetcher) Config() RetryConfig {
	return f.config
}

// Get fetches url through s and returns the envelope's result payload.
//
// Domain rejections and malformed envelopes fail immediately. Transport
// failures are retried with a wait of InitialBackoff * 2^attempt until the
// attempt budget is spent.
func (f *Fetcher) Get(ctx context.Context, s Session, url string) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var lastErr *Error

	for attempt := 0; attempt < f.config.MaxAttempts; attempt++ {
		if f.config.Delay > minPacingDelay {
			if err := f.sleep(ctx, f.config.Delay); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
		}

		result, upErr := f.attempt(ctx, s, url)
		if upErr == nil {
			requestsTotal.WithLabelValues("success").Inc()
			if attempt > 0 {
				f.logger.Info().
					Str("url", url).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return result, nil
		}

		errorsTotal.WithLabelValues(string(upErr.Kind)).Inc()
		if !shouldRetry(upErr.Kind) {
			requestsTotal.WithLabelValues(string(upErr.Kind)).Inc()
			return nil, upErr
		}
		lastErr = upErr

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		if attempt == f.config.MaxAttempts-1 {
			break
		}

		backoff := f.config.InitialBackoff * time.Duration(1<<attempt)
		retriesTotal.Inc()
		retryBackoffSeconds.Observe(backoff.Seconds())

		f.logger.Warn().
			Err(upErr).
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := f.sleep(ctx, backoff); err != nil {
			f.logger.Warn().
				Str("url", url).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.Inc()
	requestsTotal.WithLabelValues(string(KindTransport)).Inc()
	f.logger.Error().
		Err(lastErr).
		Str("url", url).
		Int("max_attempts", f.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &Error{
		Kind:       KindTransport,
		Message:    lastErr.Message,
		URL:        url,
		StatusCode: lastErr.StatusCode,
		Err:        fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, f.config.MaxAttempts, lastErr.Err),
	}
}

// attempt performs a single request and classifies its outcome.
func (f *Fetcher) attempt(ctx context.Context, s Session, url string) (json.RawMessage, *Error) {
	resp, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransport,
			Message: "network error",
			URL:     url,
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindTransport,
			Message:    "HTTP error " + strconv.Itoa(resp.StatusCode),
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	env, err := DecodeEnvelope(resp.Body)
	if err != nil {
		return nil, &Error{
			Kind:       KindValidation,
			Message:    "response validation error",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	if !env.Success {
		f.logger.Debug().
			Str("url", url).
			Str("message", env.Message).
			Msg("Upstream rejected request")
		return nil, &Error{
			Kind:       KindDomain,
			Message:    env.Message,
			URL:        url,
			Code:       env.ErrorCode,
			StatusCode: resp.StatusCode,
		}
	}

	return env.Result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
