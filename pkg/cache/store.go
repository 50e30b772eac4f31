package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store holds cache entries. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss if it is absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry until entry.Expires. Already expired entries are ignored.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
