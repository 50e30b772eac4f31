package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

// fakeSession records concurrent use and close calls.
type fakeSession struct {
	id     int
	busy   atomic.Bool
	closed atomic.Int32
	shared *atomic.Bool // set when the session was used by two goroutines at once
}

func (s *fakeSession) Fetch(ctx context.Context, url string) (*upstream.Response, error) {
	return &upstream.Response{StatusCode: 200}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	shared   atomic.Bool
}

func (f *fakeFactory) New(workerID int) (upstream.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{id: workerID, shared: &f.shared}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func newTestPool(t *testing.T, size, capacity int) (*Pool, *fakeFactory) {
	t.Helper()

	factory := &fakeFactory{}
	p, err := New(Config{Size: size, QueueCapacity: capacity}, factory.New)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Shutdown(ctx)
	})
	return p, factory
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// gateJob blocks its worker until release is closed.
func gateJob(started chan<- struct{}, release <-chan struct{}) JobFunc {
	return func(ctx context.Context, s upstream.Session) (any, error) {
		close(started)
		<-release
		return "gate", nil
	}
}

func TestNew_Validation(t *testing.T) {
	factory := &fakeFactory{}

	tests := []struct {
		name    string
		config  Config
		factory SessionFactory
		wantErr string
	}{
		{name: "zero size", config: Config{Size: 0, QueueCapacity: 1}, factory: factory.New, wantErr: "pool size must be > 0 (got 0)"},
		{name: "negative capacity", config: Config{Size: 1, QueueCapacity: -1}, factory: factory.New, wantErr: "queue capacity must be >= 0 (got -1)"},
		{name: "nil factory", config: Config{Size: 1, QueueCapacity: 1}, factory: nil, wantErr: "session factory is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config, tt.factory)
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_FactoryErrorClosesCreatedSessions(t *testing.T) {
	factory := &fakeFactory{}
	failing := func(workerID int) (upstream.Session, error) {
		if workerID == 2 {
			return nil, errors.New("dial failed")
		}
		return factory.New(workerID)
	}

	if _, err := New(Config{Size: 3, QueueCapacity: 1}, failing); err == nil {
		t.Fatal("Expected error, got nil")
	}
	for _, s := range factory.sessions {
		if s.closed.Load() != 1 {
			t.Errorf("session %d closed %d times, want 1", s.id, s.closed.Load())
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Size != 5 {
		t.Errorf("Size = %d, want 5", cfg.Size)
	}
	if cfg.QueueCapacity != 100 {
		t.Errorf("QueueCapacity = %d, want 100", cfg.QueueCapacity)
	}
}

func TestSubmit_ReturnsValueAndError(t *testing.T) {
	p, _ := newTestPool(t, 2, 4)
	ctx := context.Background()

	value, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		return 42, nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %v, want 42", value)
	}

	jobErr := errors.New("upstream said no")
	_, err = p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		return nil, jobErr
	}))
	if !errors.Is(err, jobErr) {
		t.Errorf("err = %v, want %v", err, jobErr)
	}
}

func TestSubmit_PanicDoesNotKillWorker(t *testing.T) {
	p, _ := newTestPool(t, 1, 1)
	ctx := context.Background()

	_, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		panic("boom")
	}))
	if !errors.Is(err, ErrJobPanic) {
		t.Fatalf("err = %v, want ErrJobPanic", err)
	}

	value, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		return "alive", nil
	}))
	if err != nil || value != "alive" {
		t.Errorf("worker did not survive panic: value=%v err=%v", value, err)
	}
}

func TestSubmit_FIFOWithSingleWorker(t *testing.T) {
	p, _ := newTestPool(t, 1, 16)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go p.Submit(ctx, gateJob(started, release))
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	const jobs = 10
	for i := 0; i < jobs; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i, nil
			}))
		}()
		// enqueue strictly one after another
		waitFor(t, func() bool { return p.Stats().Queued == i+1 })
	}

	close(release)
	wg.Wait()

	if len(order) != jobs {
		t.Fatalf("got %d results, want %d", len(order), jobs)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestSubmit_InFlightNeverExceedsPoolSize(t *testing.T) {
	const size = 3
	const submitters = 20

	p, factory := newTestPool(t, size, submitters)
	ctx := context.Background()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
				fs := s.(*fakeSession)
				if !fs.busy.CompareAndSwap(false, true) {
					fs.shared.Store(true)
				}
				defer fs.busy.Store(false)

				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil, nil
			}))
			if err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("peak in-flight = %d, want <= %d", peak.Load(), size)
	}
	if factory.shared.Load() {
		t.Error("a session was used by two jobs at the same time")
	}
	if got := p.Stats().Completed; got != submitters {
		t.Errorf("Completed = %d, want %d", got, submitters)
	}
}

func TestSubmit_BlocksWhenQueueFull(t *testing.T) {
	const capacity = 2
	p, _ := newTestPool(t, 1, capacity)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go p.Submit(ctx, gateJob(started, release))
	<-started

	noop := JobFunc(func(ctx context.Context, s upstream.Session) (any, error) { return nil, nil })
	for i := 0; i < capacity; i++ {
		go p.Submit(ctx, noop)
	}
	waitFor(t, func() bool { return p.Stats().Queued == capacity })

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err := p.Submit(timeoutCtx, noop)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if q := p.Stats().Queued; q != capacity {
		t.Errorf("Queued = %d, want %d", q, capacity)
	}

	close(release)
	waitFor(t, func() bool { return p.Stats().Queued == 0 })
}

func TestSubmit_AbandonedJobIsSkipped(t *testing.T) {
	p, _ := newTestPool(t, 1, 4)

	started := make(chan struct{})
	release := make(chan struct{})
	go p.Submit(context.Background(), gateJob(started, release))
	<-started

	var ran atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
			ran.Store(true)
			return nil, nil
		}))
		done <- err
	}()
	waitFor(t, func() bool { return p.Stats().Queued == 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	close(release)
	waitFor(t, func() bool { return p.Stats().Completed == 2 })
	if ran.Load() {
		t.Error("abandoned job was executed")
	}
}

func TestShutdown_ClosesAllSessions(t *testing.T) {
	factory := &fakeFactory{}
	p, err := New(Config{Size: 4, QueueCapacity: 4}, factory.New)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	p.Shutdown(ctx)
	if time.Since(start) > time.Second {
		t.Errorf("Shutdown took %v", time.Since(start))
	}

	for _, s := range factory.sessions {
		if s.closed.Load() != 1 {
			t.Errorf("session %d closed %d times, want 1", s.id, s.closed.Load())
		}
	}

	// second shutdown is a no-op
	p.Shutdown(ctx)
	for _, s := range factory.sessions {
		if s.closed.Load() != 1 {
			t.Errorf("session %d closed again on second Shutdown", s.id)
		}
	}
}

func TestShutdown_RejectsNewJobs(t *testing.T) {
	p, _ := newTestPool(t, 1, 1)
	p.Shutdown(context.Background())

	_, err := p.Submit(context.Background(), JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
		return nil, nil
	}))
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
}

func TestShutdown_InFlightCompletesQueuedResolvedClosed(t *testing.T) {
	p, _ := newTestPool(t, 1, 4)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	gateDone := make(chan any, 1)
	go func() {
		v, _ := p.Submit(ctx, gateJob(started, release))
		gateDone <- v
	}()
	<-started

	queuedErr := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, JobFunc(func(ctx context.Context, s upstream.Session) (any, error) {
			return "should not run", nil
		}))
		queuedErr <- err
	}()
	waitFor(t, func() bool { return p.Stats().Queued == 1 })

	shutdownDone := make(chan struct{})
	go func() {
		p.Shutdown(context.Background())
		close(shutdownDone)
	}()
	waitFor(t, func() bool {
		select {
		case <-p.quit:
			return true
		default:
			return false
		}
	})

	close(release)
	<-shutdownDone

	if v := <-gateDone; v != "gate" {
		t.Errorf("in-flight job result = %v, want gate", v)
	}
	if err := <-queuedErr; !errors.Is(err, ErrPoolClosed) {
		t.Errorf("queued job err = %v, want ErrPoolClosed", err)
	}
}

func TestResult_ResolveOnce(t *testing.T) {
	r := newResult()

	if !r.resolve("first", nil) {
		t.Fatal("first resolve should win")
	}
	if r.resolve("second", errors.New("late")) {
		t.Error("second resolve should be a no-op")
	}

	value, err := r.wait()
	if value != "first" || err != nil {
		t.Errorf("wait() = %v, %v; want first, nil", value, err)
	}
}
