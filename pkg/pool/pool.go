// Package pool bounds concurrency against the upstream service: a fixed set
// of workers, each owning exactly one upstream session, drains a shared
// bounded FIFO queue of jobs.
//
// Jobs are served in enqueue order. With more than one worker completion
// order is not guaranteed.
//
// Shutdown stops idle workers immediately. A job already running on a worker
// is allowed to finish, bounded by its caller's context. Jobs still sitting in
// the queue when the workers are gone are resolved with ErrPoolClosed.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

var (
	// ErrPoolClosed is returned for jobs submitted to, or stranded in, a pool
	// that has been shut down.
	ErrPoolClosed = errors.New("pool closed")

	// ErrJobPanic wraps a panic recovered from a job.
	ErrJobPanic = errors.New("job panicked")
)

// Config holds the pool configuration.
type Config struct {
	// Size is the number of workers and upstream sessions.
	Size int

	// QueueCapacity is the maximum number of waiting jobs. Submit blocks
	// while the queue is full.
	QueueCapacity int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:          5,
		QueueCapacity: 100,
	}
}

// SessionFactory creates the session owned by worker workerID.
type SessionFactory func(workerID int) (upstream.Session, error)

// Stats is a snapshot of pool bookkeeping.
type Stats struct {
	Queued    int
	InFlight  int64
	Completed int64
}

// Pool is a fixed-size worker pool bound to upstream sessions.
type Pool struct {
	config   Config
	queue    chan *task
	sessions []upstream.Session

	quit     chan struct{} // closed to stop workers
	stopped  chan struct{} // closed once workers exited and the queue was drained
	stopOnce sync.Once
	wg       sync.WaitGroup

	inFlight  atomic.Int64
	completed atomic.Int64

	logger zerolog.Logger
}

// New creates cfg.Size sessions through factory and starts one worker per
// session.
func New(cfg Config, factory SessionFactory) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0 (got %d)", cfg.Size)
	}
	if cfg.QueueCapacity < 0 {
		return nil, fmt.Errorf("queue capacity must be >= 0 (got %d)", cfg.QueueCapacity)
	}
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}

	logger := log.With().Str("component", "pool").Logger()

	sessions := make([]upstream.Session, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		s, err := factory(i)
		if err != nil {
			for _, created := range sessions {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	p := &Pool{
		config:   cfg,
		queue:    make(chan *task, cfg.QueueCapacity),
		sessions: sessions,
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   logger,
	}

	logger.Info().
		Int("workers", cfg.Size).
		Int("queue_capacity", cfg.QueueCapacity).
		Msg("Starting worker pool")

	for i, s := range sessions {
		p.wg.Add(1)
		go p.worker(i, s)
	}

	return p, nil
}

// Submit enqueues job and waits for its result. It blocks while the queue is
// full. If ctx is done before the job finishes, Submit returns ctx.Err() and
// a worker that later dequeues the job skips it.
func (p *Pool) Submit(ctx context.Context, job Job) (any, error) {
	select {
	case <-p.quit:
		return nil, ErrPoolClosed
	default:
	}

	t := &task{
		id:         uuid.NewString(),
		ctx:        ctx,
		job:        job,
		res:        newResult(),
		enqueuedAt: time.Now(),
	}

	select {
	case p.queue <- t:
		queueDepth.Set(float64(len(p.queue)))
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolClosed
	}

	select {
	case <-t.res.done:
	case <-ctx.Done():
		t.res.resolve(nil, ctx.Err())
	case <-p.stopped:
		t.res.resolve(nil, ErrPoolClosed)
	}

	return t.res.wait()
}

// Shutdown stops all workers and waits for them until ctx is done. It never
// fails: if ctx expires first the remaining cleanup continues in the
// background. Calling Shutdown more than once is safe.
func (p *Pool) Shutdown(ctx context.Context) {
	p.stopOnce.Do(func() {
		p.logger.Info().Msg("Shutting down worker pool")
		close(p.quit)

		go func() {
			p.wg.Wait()
			p.drain()
			close(p.stopped)
		}()
	})

	select {
	case <-p.stopped:
		p.logger.Info().
			Int64("completed", p.completed.Load()).
			Msg("Worker pool stopped")
	case <-ctx.Done():
		p.logger.Warn().
			Int64("in_flight", p.inFlight.Load()).
			Msg("Shutdown deadline reached with jobs still running")
	}
}

// Stats returns a snapshot of queue and worker counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.queue),
		InFlight:  p.inFlight.Load(),
		Completed: p.completed.Load(),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// worker runs until the pool is shut down. It owns s and closes it on exit.
func (p *Pool) worker(id int, s upstream.Session) {
	defer p.wg.Done()
	defer func() {
		if err := s.Close(); err != nil {
			p.logger.Warn().Err(err).Int("worker_id", id).Msg("Failed to close session")
		}
	}()

	logger := p.logger.With().Int("worker_id", id).Logger()
	logger.Debug().Msg("Worker started")

	for {
		// Shutdown takes priority over queued work.
		select {
		case <-p.quit:
			logger.Debug().Msg("Worker stopping")
			return
		default:
		}

		select {
		case <-p.quit:
			logger.Debug().Msg("Worker stopping")
			return
		case t := <-p.queue:
			queueDepth.Set(float64(len(p.queue)))
			p.run(logger, s, t)
		}
	}
}

// run executes one dequeued task and resolves its result cell.
func (p *Pool) run(logger zerolog.Logger, s upstream.Session, t *task) {
	queueWaitSeconds.Observe(time.Since(t.enqueuedAt).Seconds())
	defer p.completed.Add(1)

	if t.res.resolved.Load() {
		jobsTotal.WithLabelValues("abandoned").Inc()
		logger.Debug().Str("job_id", t.id).Msg("Skipping abandoned job")
		return
	}
	if err := t.ctx.Err(); err != nil {
		jobsTotal.WithLabelValues("abandoned").Inc()
		t.res.resolve(nil, err)
		return
	}

	p.inFlight.Add(1)
	jobsInFlight.Inc()
	value, err := p.execute(t, s)
	jobsInFlight.Dec()
	p.inFlight.Add(-1)

	switch {
	case errors.Is(err, ErrJobPanic):
		jobsTotal.WithLabelValues("panic").Inc()
	case err != nil:
		jobsTotal.WithLabelValues("error").Inc()
	default:
		jobsTotal.WithLabelValues("success").Inc()
	}

	if !t.res.resolve(value, err) {
		logger.Debug().Str("job_id", t.id).Msg("Caller stopped waiting before job finished")
	}
}

// execute calls the job, converting a panic into an error so the worker
// survives.
func (p *Pool) execute(t *task, s upstream.Session) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", t.id).
				Interface("panic", r).
				Msg("Job panicked")
			value, err = nil, fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	return t.job.Execute(t.ctx, s)
}

// drain resolves every job left in the queue with ErrPoolClosed. Drained jobs
// were never handed to a worker and are not counted as completed.
func (p *Pool) drain() {
	stranded := 0
	for {
		select {
		case t := <-p.queue:
			if t.res.resolve(nil, ErrPoolClosed) {
				stranded++
			}
		default:
			queueDepth.Set(0)
			if stranded > 0 {
				p.logger.Warn().Int("jobs", stranded).Msg("Resolved queued jobs as closed")
			}
			return
		}
	}
}
