package cache

import (
	"time"
)

// Entry is a cached upstream result.
type Entry struct {
	// Data is the JSON-encoded result
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this result
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return e.expiredAt(time.Now())
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (e *Entry) expiredAt(now time.Time) bool {
	return !now.Before(e.Expires)
}
