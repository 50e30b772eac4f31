// Command gorzdrav-proxy serves the Gorzdrav appointment API through a
// bounded session pool with retries and caching.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/client"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/gorzdrav"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Proxy failed")
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		cfg.Client.Redis = redisClient
	}

	c, err := client.New(cfg.Client)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	srv := newServer(gorzdrav.NewAPI(c, gorzdrav.DefaultConfig()), redisClient, cfg.RequestTimeout)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("upstream", cfg.Client.BaseURL).Msg("Starting Gorzdrav proxy server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			c.Close(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	}

	srv.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	c.Close(shutdownCtx)

	logger.Info().Msg("Gorzdrav proxy stopped")
	return nil
}
