package cache

import (
	"context"
	"time"

	"github.com/jordigilh/rtx/internal/telemetry"
)

// instrumentedCache wraps a Cache and records a hit/miss on every lookup
// against m, labelled by the key's Source. It never changes cache
// semantics, only observes them.
type instrumentedCache struct {
	inner Cache
	m     *telemetry.Metrics
}

// WithMetrics wraps inner so every Get/GetOrFetch records a cache hit or
// miss against m. Passing a nil m returns inner unwrapped.
func WithMetrics(inner Cache, m *telemetry.Metrics) Cache {
	if m == nil {
		return inner
	}
	return &instrumentedCache{inner: inner, m: m}
}

func (c *instrumentedCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	payload, ok, err := c.inner.Get(ctx, key)
	if err == nil {
		c.m.ObserveCache(key.Source, ok)
	}
	return payload, ok, err
}

func (c *instrumentedCache) Set(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, payload, ttl)
}

func (c *instrumentedCache) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	hit := true
	wrapped := func(fctx context.Context) ([]byte, error) {
		hit = false
		return fetch(fctx)
	}
	payload, err := c.inner.GetOrFetch(ctx, key, ttl, wrapped)
	if err == nil {
		c.m.ObserveCache(key.Source, hit)
	}
	return payload, err
}
