package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// MemoryCache is a bounded LRU with per-entry TTL, backed by an
// in-process map. It is the default Cache implementation and the one every
// other backend (file, redis) layers underneath for coalescing.
type MemoryCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[Key]*list.Element
	order   *list.List // front = most recently used
	group   singleflight.Group
	now     func() time.Time
}

type memEntry struct {
	key   Key
	entry Entry
}

// NewMemoryCache returns a MemoryCache bounded to maxSize entries (per the
// whole cache, not per source: cmd/rtx's buildOrchestrator builds one
// cache that every advisory source shares, so all sources count against
// the same bound). maxSize<=0 uses DefaultMaxEntries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &MemoryCache{
		maxSize: maxSize,
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	me := el.Value.(*memEntry)
	if c.now().After(me.entry.ExpiresAt) {
		// TTL expired: evict lazily rather than returning stale data.
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return me.entry.Payload, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key Key, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, payload, ttl)
	return nil
}

func (c *MemoryCache) setLocked(key Key, payload []byte, ttl time.Duration) {
	now := c.now()
	if el, ok := c.entries[key]; ok {
		me := el.Value.(*memEntry)
		me.entry = Entry{Payload: payload, FetchedAt: now, ExpiresAt: now.Add(ttl)}
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&memEntry{key: key, entry: Entry{Payload: payload, FetchedAt: now, ExpiresAt: now.Add(ttl)}})
	c.entries[key] = el

	for len(c.entries) > c.maxSize {
		back := c.order.Back()
		if back == nil {
			break
		}
		be := back.Value.(*memEntry)
		c.order.Remove(back)
		delete(c.entries, be.key)
	}
}

// singleflightKey renders a Key to the string singleflight.Group needs.
func singleflightKey(k Key) string {
	return k.Source + "\x00" + k.Ecosystem + "\x00" + k.Name + "\x00" + k.Version
}

// GetOrFetch implements Cache. At most one call to fetch is ever in flight
// for a given key at a time; concurrent callers for the same key block on
// the same in-flight call and receive its result (the single-flight
// invariant).
func (c *MemoryCache) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok, err := c.Get(ctx, key); err == nil && ok {
		return payload, nil
	}

	v, err, _ := c.group.Do(singleflightKey(key), func() (interface{}, error) {
		// Re-check under the single-flight lock: another goroutine may have
		// populated the cache between our Get above and acquiring the
		// singleflight slot.
		if payload, ok, gerr := c.Get(ctx, key); gerr == nil && ok {
			return payload, nil
		}
		payload, ferr := fetch(ctx)
		if ferr != nil {
			// A failed fetch is never cached, matching the
			// default of no negative caching.
			return nil, ferr
		}
		c.mu.Lock()
		c.setLocked(key, payload, ttl)
		c.mu.Unlock()
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
