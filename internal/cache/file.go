package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
)

// FileCache persists entries to one file per cache key under a configured
// directory, keyed by a stable hash of the cache key. Writes are
// atomic (write-then-rename) so a crash mid-write never corrupts an
// existing entry. It wraps a MemoryCache for the hot path and single-flight
// coalescing; disk is only consulted on an in-process miss.
type FileCache struct {
	dir string
	mem *MemoryCache
}

// NewFileCache returns a FileCache rooted at dir, creating it if necessary.
func NewFileCache(dir string, maxSize int) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "cache: create cache directory")
	}
	return &FileCache{dir: dir, mem: NewMemoryCache(maxSize)}, nil
}

type fileEntry struct {
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Checksum  string    `json:"checksum"`
}

func (c *FileCache) pathFor(key Key) string {
	h := sha256.Sum256([]byte(singleflightKey(key)))
	return filepath.Join(c.dir, hex.EncodeToString(h[:]))
}

func checksum(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// Get implements Cache, consulting the in-process cache first and falling
// back to disk. A corrupt or checksum-mismatched file is treated as a miss
// and evicted, never as an error.
func (c *FileCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if payload, ok, err := c.mem.Get(ctx, key); err == nil && ok {
		return payload, true, nil
	}

	raw, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false, nil
	}
	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		_ = os.Remove(c.pathFor(key))
		return nil, false, nil
	}
	if checksum(fe.Payload) != fe.Checksum {
		_ = os.Remove(c.pathFor(key))
		return nil, false, nil
	}
	if time.Now().After(fe.ExpiresAt) {
		_ = os.Remove(c.pathFor(key))
		return nil, false, nil
	}

	ttl := time.Until(fe.ExpiresAt)
	_ = c.mem.Set(ctx, key, fe.Payload, ttl)
	return fe.Payload, true, nil
}

// Set implements Cache, writing through to disk with write-then-rename.
func (c *FileCache) Set(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if err := c.mem.Set(ctx, key, payload, ttl); err != nil {
		return err
	}
	return c.writeThrough(key, payload, ttl)
}

func (c *FileCache) writeThrough(key Key, payload []byte, ttl time.Duration) error {
	now := time.Now()
	fe := fileEntry{
		Payload:   payload,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
		Checksum:  checksum(payload),
	}
	buf, err := json.Marshal(fe)
	if err != nil {
		return errors.Wrap(err, "cache: marshal entry")
	}

	dst := c.pathFor(key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return errors.Wrap(err, "cache: write temp file")
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errors.Wrap(err, "cache: rename into place")
	}
	return nil
}

// GetOrFetch implements Cache, single-flighting through the in-process
// cache and persisting a successful fetch to disk.
func (c *FileCache) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok, _ := c.Get(ctx, key); ok {
		return payload, nil
	}
	return c.mem.GetOrFetch(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if werr := c.writeThrough(key, payload, ttl); werr != nil {
			return nil, werr
		}
		return payload, nil
	})
}
