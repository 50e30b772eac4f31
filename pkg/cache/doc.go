// Package cache short-circuits upstream calls with a TTL cache keyed by the
// logical request identity.
//
// Keys are built from an endpoint name and its parameters. Parameters are
// sorted by name and nil values are skipped, so argument order and omitted
// optional filters never change the key.
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.NewMemoryStore(), cache.Config{
//		TTL: 10 * time.Minute,
//	})
//
//	lpus, err := cache.Cached(ctx, manager, "lpus",
//		map[string]any{"district_id": districtID},
//		func(ctx context.Context) ([]LPU, error) {
//			return fetchLPUs(ctx, districtID)
//		})
//
// # Stores
//
// MemoryStore keeps entries in process memory with passive expiry and no size
// bound. RedisStore keeps JSON-encoded entries in Redis with a native TTL.
// Values are always cached as JSON so both stores behave the same.
//
// Only successful results are cached. Store errors are logged and treated as
// misses.
//
// # Concurrent Misses
//
// Without Config.SingleFlight two callers missing the same key at the same
// time both run their producer. With it, the second caller waits for the
// first and shares its result (and its error).
//
// # Metrics
//
//   - gorzdrav_cache_hits_total{layer} - Cache hits
//   - gorzdrav_cache_misses_total - Cache misses
//   - gorzdrav_cache_writes_total{layer} - Entries written
//   - gorzdrav_cache_errors_total{operation} - Store and decode errors
//   - gorzdrav_cache_shared_misses_total - Misses coalesced by single-flight
package cache
