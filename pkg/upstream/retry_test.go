package upstream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

// scriptedSession replays a fixed list of outcomes, repeating the last one.
type scriptedSession struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

type scriptedStep struct {
	resp *Response
	err  error
}

func (s *scriptedSession) Fetch(ctx context.Context, url string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].resp, s.steps[i].err
}

func (s *scriptedSession) Close() error { return nil }

func ok(body string) scriptedStep {
	return scriptedStep{resp: &Response{StatusCode: http.StatusOK, Body: []byte(body)}}
}

func status(code int) scriptedStep {
	return scriptedStep{resp: &Response{StatusCode: code}}
}

func netErr() scriptedStep {
	return scriptedStep{err: errors.New("connection refused")}
}

// recordSleeps returns a SleepFunc that records waits without sleeping.
func recordSleeps(waits *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func newTestFetcher(delay time.Duration, waits *[]time.Duration) *Fetcher {
	f := NewFetcher(RetryConfig{
		MaxAttempts:    3,
		Delay:          delay,
		InitialBackoff: 1 * time.Second,
	})
	f.SetSleep(recordSleeps(waits))
	return f
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.Delay != 1*time.Second {
		t.Errorf("Delay = %v, want 1s", config.Delay)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(RetryConfig{})
	cfg := f.Config()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", cfg.InitialBackoff)
	}
	if cfg.Delay != 0 {
		t.Errorf("Delay = %v, want 0", cfg.Delay)
	}
}

func TestFetcher_Success(t *testing.T) {
	var waits []time.Duration
	f := newTestFetcher(0, &waits)
	s := &scriptedSession{steps: []scriptedStep{ok(`{"success": true, "result": [1, 2], "message": null}`)}}

	result, err := f.Get(context.Background(), s, "http://upstream/test")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "[1, 2]" {
		t.Errorf("result = %s, want [1, 2]", result)
	}
	if s.calls != 1 {
		t.Errorf("Expected 1 call, got %d", s.calls)
	}
	if len(waits) != 0 {
		t.Errorf("Expected no waits, got %v", waits)
	}
}

func TestFetcher_SuccessAfterTransportFailures(t *testing.T) {
	var waits []time.Duration
	f := newTestFetcher(0, &waits)
	s := &scriptedSession{steps: []scriptedStep{
		netErr(),
		status(http.StatusBadGateway),
		ok(`{"success": true, "result": "done"}`),
	}}

	result, err := f.Get(context.Background(), s, "http://upstream/test")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != `"done"` {
		t.Errorf("result = %s, want \"done\"", result)
	}
	if s.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", s.calls)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestFetcher_PacingDelayOnEveryAttempt(t *testing.T) {
	var waits []time.Duration
	f := newTestFetcher(1*time.Second, &waits)
	s := &scriptedSession{steps: []scriptedStep{
		netErr(),
		ok(`{"success": true, "result": 1}`),
	}}

	if _, err := f.Get(context.Background(), s, "http://upstream/test"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// pacing, backoff(1s), pacing
	want := []time.Duration{1 * time.Second, 1 * time.Second, 1 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestFetcher_PacingDelayThreshold(t *testing.T) {
	tests := []struct {
		name      string
		delay     time.Duration
		wantWaits int
	}{
		{name: "below threshold", delay: 40 * time.Millisecond, wantWaits: 0},
		{name: "at threshold", delay: 50 * time.Millisecond, wantWaits: 0},
		{name: "above threshold", delay: 51 * time.Millisecond, wantWaits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			f := newTestFetcher(tt.delay, &waits)
			s := &scriptedSession{steps: []scriptedStep{ok(`{"success": true, "result": 1}`)}}

			if _, err := f.Get(context.Background(), s, "http://upstream/test"); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(waits) != tt.wantWaits {
				t.Errorf("waits = %v, want %d wait(s)", waits, tt.wantWaits)
			}
		})
	}
}

func TestFetcher_DomainErrorNoRetry(t *testing.T) {
	var waits []time.Duration
	f := newTestFetcher(0, &waits)
	s := &scriptedSession{steps: []scriptedStep{
		ok(`{"success": false, "result": null, "message": "no tickets", "errorCode": 39}`),
	}}

	_, err := f.Get(context.Background(), s, "http://upstream/appointments")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if s.calls != 1 {
		t.Errorf("Expected 1 call (no retry for domain errors), got %d", s.calls)
	}
	if len(waits) != 0 {
		t.Errorf("Expected no backoff waits, got %v", waits)
	}
	if !errors.Is(err, ErrDomain) {
		t.Errorf("Expected ErrDomain, got %v", err)
	}

	var upErr *Error
	if !errors.As(err, &upErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if upErr.Message != "no tickets" {
		t.Errorf("Message = %q, want %q", upErr.Message, "no tickets")
	}
	if upErr.Code == nil || *upErr.Code != 39 {
		t.Errorf("Code = %v, want 39", upErr.Code)
	}
	if upErr.URL != "http://upstream/appointments" {
		t.Errorf("URL = %q", upErr.URL)
	}
}

func TestFetcher_ValidationErrorNoRetry(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `<html>maintenance</html>`},
		{name: "missing success", body: `{"result": []}`},
		{name: "wrong success type", body: `{"success": "yes", "result": []}`},
		{name: "wrong errorCode type", body: `{"success": false, "errorCode": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			f := newTestFetcher(0, &waits)
			s := &scriptedSession{steps: []scriptedStep{ok(tt.body)}}

			_, err := f.Get(context.Background(), s, "http://upstream/test")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
			if s.calls != 1 {
				t.Errorf("Expected 1 call, got %d", s.calls)
			}
		})
	}
}

func TestFetcher_RetryExhausted(t *testing.T) {
	var waits []time.Duration
	f := newTestFetcher(0, &waits)
	s := &scriptedSession{steps: []scriptedStep{status(http.StatusServiceUnavailable)}}

	_, err := f.Get(context.Background(), s, "http://upstream/test")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if s.calls != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", s.calls)
	}
	// no wait after the last attempt
	if len(waits) != 2 {
		t.Errorf("Expected 2 backoff waits, got %v", waits)
	}

	var upErr *Error
	if errors.As(err, &upErr) && upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", upErr.StatusCode)
	}
}

func TestFetcher_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	f := NewFetcher(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second})
	f.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	s := &scriptedSession{steps: []scriptedStep{netErr()}}

	_, err := f.Get(ctx, s, "http://upstream/test")
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if s.calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", s.calls)
	}
}

func TestFetcher_ContextErrorIdentityPreserved(t *testing.T) {
	tests := []struct {
		name    string
		sleepFn func(cancel context.CancelFunc) SleepFunc
		want    error
	}{
		{
			name: "cancelled during backoff",
			sleepFn: func(cancel context.CancelFunc) SleepFunc {
				return func(ctx context.Context, d time.Duration) error {
					cancel()
					return ctx.Err()
				}
			},
			want: context.Canceled,
		},
		{
			name: "deadline during backoff",
			sleepFn: func(cancel context.CancelFunc) SleepFunc {
				return func(ctx context.Context, d time.Duration) error {
					return context.DeadlineExceeded
				}
			},
			want: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			f := NewFetcher(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second})
			f.SetSleep(tt.sleepFn(cancel))
			s := &scriptedSession{steps: []scriptedStep{netErr()}}

			_, err := f.Get(ctx, s, "http://upstream/test")
			if !errors.Is(err, ErrContextCancelled) {
				t.Errorf("Expected ErrContextCancelled, got %v", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected errors.Is(err, %v), got %v", tt.want, err)
			}
		})
	}
}

func TestFetcher_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(RetryConfig{MaxAttempts: 3})
	s := &scriptedSession{steps: []scriptedStep{scriptedStep{err: context.Canceled}}}

	_, err := f.Get(ctx, s, "http://upstream/test")
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if s.calls != 1 {
		t.Errorf("Expected a single attempt, got %d", s.calls)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepContext did not return promptly on cancellation")
	}
}
