package gorzdrav

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency caps the number of lookups a batch keeps queued at
// once. The pool still bounds actual upstream concurrency.
const DefaultBatchConcurrency = 10

// BatchError collects the per-key failures of a batch.
type BatchError[K comparable] struct {
	Failed map[K]error
	Total  int
}

// Error implements the error interface.
func (e *BatchError[K]) Error() string {
	return fmt.Sprintf("batch: %d of %d lookups failed", len(e.Failed), e.Total)
}

// Unwrap exposes the individual failures to errors.Is/As.
func (e *BatchError[K]) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// SpecialtiesByLPU fetches the specialties of several institutions in
// parallel. It returns the successful results together with a *BatchError
// when some lookups failed.
func (a *API) SpecialtiesByLPU(ctx context.Context, lpuIDs []int) (map[int]List[Specialty], error) {
	return fanOut(ctx, a, "specialties", lpuIDs, a.Specialties)
}

// AppointmentsByDoctor fetches the free slots of several doctors of one
// institution in parallel. Partial results are returned as in
// SpecialtiesByLPU.
func (a *API) AppointmentsByDoctor(ctx context.Context, lpuID int, doctorIDs []string) (map[string]List[Appointment], error) {
	return fanOut(ctx, a, "appointments", doctorIDs, func(ctx context.Context, doctorID string) (List[Appointment], error) {
		return a.Appointments(ctx, lpuID, doctorID)
	})
}

// fanOut runs fetch for every distinct key, at most DefaultBatchConcurrency
// at a time. A failed key does not cancel the others.
func fanOut[K comparable, V any](ctx context.Context, a *API, name string, keys []K, fetch func(context.Context, K) (V, error)) (map[K]V, error) {
	start := time.Now()

	results := make(map[K]V, len(keys))
	failed := make(map[K]error)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(DefaultBatchConcurrency)

	seen := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		g.Go(func() error {
			v, err := fetch(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[key] = err
				return nil
			}
			results[key] = v
			return nil
		})
	}
	_ = g.Wait()

	logger := a.logger.With().
		Str("batch", name).
		Int("total", len(seen)).
		Int("failed", len(failed)).
		Dur("duration", time.Since(start)).
		Logger()

	if len(failed) > 0 {
		logger.Warn().Msg("Batch complete with failures - returning partial results")
		return results, &BatchError[K]{Failed: failed, Total: len(seen)}
	}
	logger.Debug().Msg("Batch complete")
	return results, nil
}

// IsPartial reports whether err is a batch error with at least one success.
func IsPartial[K comparable](err error) bool {
	var be *BatchError[K]
	return errors.As(err, &be) && len(be.Failed) < be.Total
}
