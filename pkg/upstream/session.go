// Package upstream talks to the Gorzdrav API: one long-lived HTTP session per
// pool worker, the response envelope, and the retrying fetcher.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultHeaders are sent with every upstream request unless overridden.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0.0.0",
	"Accept":          "application/json",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://gorzdrav.spb.ru/service-free-schedule",
}

// Response is a raw upstream response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Session is a single upstream connection owner. A Session is used by one
// goroutine at a time and is never shared between pool workers.
type Session interface {
	// Fetch performs a GET against url. A non-nil error means the request
	// never produced a response (network failure, timeout).
	Fetch(ctx context.Context, url string) (*Response, error)

	// Close releases the connection. Calling it more than once is a no-op.
	Close() error
}

// SessionConfig configures an HTTPSession.
type SessionConfig struct {
	// Headers are set on every request.
	Headers map[string]string

	// Timeout bounds a single request.
	Timeout time.Duration

	// Limiter, when non-nil, is waited on before every request. It is meant
	// to be shared by all sessions of a pool to cap the total upstream rate.
	Limiter *rate.Limiter
}

// DefaultSessionConfig returns the configuration used by the proxy.
func DefaultSessionConfig() SessionConfig {
	headers := make(map[string]string, len(DefaultHeaders))
	for k, v := range DefaultHeaders {
		headers[k] = v
	}
	return SessionConfig{
		Headers: headers,
		Timeout: 30 * time.Second,
	}
}

// HTTPSession is a Session backed by its own *http.Client and transport, so
// keep-alive connections are not shared with other sessions.
type HTTPSession struct {
	httpClient *http.Client
	transport  *http.Transport
	config     SessionConfig
	closeOnce  sync.Once
}

// NewHTTPSession creates a session with a dedicated transport.
func NewHTTPSession(cfg SessionConfig) *HTTPSession {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ForceAttemptHTTP2 = true

	return &HTTPSession{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		config:    cfg,
	}
}

// Fetch implements Session.
func (s *HTTPSession) Fetch(ctx context.Context, url string) (*Response, error) {
	if s.config.Limiter != nil {
		if err := s.config.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// Close implements Session.
func (s *HTTPSession) Close() error {
	s.closeOnce.Do(func() {
		s.transport.CloseIdleConnections()
	})
	return nil
}

// SetHTTPClient replaces the underlying client (for testing).
func (s *HTTPSession) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}
