package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

// Job is one unit of queued work. Execute runs on a pool worker with that
// worker's session; the session must not be retained after Execute returns.
type Job interface {
	Execute(ctx context.Context, s upstream.Session) (any, error)
}

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context, s upstream.Session) (any, error)

// Execute implements Job.
func (f JobFunc) Execute(ctx context.Context, s upstream.Session) (any, error) {
	return f(ctx, s)
}

// result is a single-assignment cell bridging a worker and the submitter.
type result struct {
	done     chan struct{}
	resolved atomic.Bool
	value    any
	err      error
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

// resolve assigns the outcome. Only the first call wins; later calls return
// false and change nothing.
func (r *result) resolve(value any, err error) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.value = value
	r.err = err
	close(r.done)
	return true
}

// wait blocks until the cell is resolved.
func (r *result) wait() (any, error) {
	<-r.done
	return r.value, r.err
}

// task is a queued job with its caller context and result cell.
type task struct {
	id         string
	ctx        context.Context
	job        Job
	res        *result
	enqueuedAt time.Time
}
