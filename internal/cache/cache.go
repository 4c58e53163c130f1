// Package cache implements the content-addressed, bounded, TTL-expiring
// cache shared by every provider, with single-flight coalescing of
// concurrent misses for the same key.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the per-entry time-to-live used when a provider does not
// override it.
const DefaultTTL = 1 * time.Hour

// DefaultMaxEntries is the default bound on entries per cache instance.
const DefaultMaxEntries = 512

// Key identifies a cache entry: (source, ecosystem, name, version-or-none).
// An empty Version means "applies to all versions of this package" (used
// by fetches that are not version-specific).
type Key struct {
	Source    string
	Ecosystem string
	Name      string
	Version   string
}

// Entry is a stored cache payload plus its bookkeeping timestamps.
type Entry struct {
	Payload   []byte
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Cache is the interface every provider uses to read/write cached payloads.
// Implementations must guarantee: a cache hit returns the stored payload
// unchanged; a miss followed by a successful fetch is visible to any
// awaiter before the fetcher's own call returns; a failed fetch is never
// cached; and an entry whose ExpiresAt is in the past is never returned as
// a hit.
type Cache interface {
	// Get returns the cached payload for key, or ok=false on a miss or
	// expired entry.
	Get(ctx context.Context, key Key) (payload []byte, ok bool, err error)
	// Set stores payload under key with the given TTL.
	Set(ctx context.Context, key Key, payload []byte, ttl time.Duration) error
	// GetOrFetch coalesces concurrent misses for the same key into a single
	// call to fetch (the single-flight invariant).
	GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error)
}
