// Package cache is a TTL-keyed response cache persisted in a kv.Store.
//
// Entries live under "cache_<key>" as JSON {payload, expiresAt}. There is no
// background sweep: an expired entry is evicted when an expiry-enforcing read
// finds it. Corrupt entries read as absent and are overwritten by the next
// Save for that key.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/kv"
	"github.com/dmitrijs2005/resilientapi/internal/logging"
)

// KeyPrefix namespaces cache entries in the kv store.
const KeyPrefix = "cache_"

// Entry is the persisted form of a cached payload.
type Entry struct {
	Payload json.RawMessage `json:"payload"`
	// ExpiresAt is a Unix timestamp in milliseconds.
	ExpiresAt int64 `json:"expiresAt"`
}

type Cache struct {
	kv  kv.Store
	now func() time.Time
	log logging.Logger
}

type Option func(*Cache)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.log = l }
}

func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{kv: store, now: time.Now, log: logging.Discard()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func storageKey(key string) string {
	return KeyPrefix + key
}

// Save stores payload under key until now+ttl, replacing any prior entry.
// An empty payload, such as a 204 body, is stored as null.
func (c *Cache) Save(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	e := Entry{Payload: payload, ExpiresAt: c.now().Add(ttl).UnixMilli()}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}
	if err := c.kv.Set(ctx, storageKey(key), string(data)); err != nil {
		return fmt.Errorf("failed to save cache entry %q: %w", key, err)
	}
	return nil
}

// Read returns the payload for key if present and, unless ignoreExpiry is
// set, not yet expired. It never returns an error: storage failures and
// unparsable entries read as absent.
func (c *Cache) Read(ctx context.Context, key string, ignoreExpiry bool) (json.RawMessage, bool) {
	raw, ok, err := c.kv.Get(ctx, storageKey(key))
	if err != nil {
		c.log.Warn(ctx, "cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.log.Warn(ctx, "corrupt cache entry skipped", "key", key, "error", err)
		return nil, false
	}

	if !ignoreExpiry && e.ExpiresAt <= c.now().UnixMilli() {
		if err := c.kv.Remove(ctx, storageKey(key)); err != nil {
			c.log.Warn(ctx, "failed to evict expired cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	return e.Payload, true
}

// Remove drops a single entry.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.kv.Remove(ctx, storageKey(key)); err != nil {
		return fmt.Errorf("failed to remove cache entry %q: %w", key, err)
	}
	return nil
}

// Clear drops every cache entry, leaving other kv keys untouched.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}
	if err := c.kv.MultiRemove(ctx, keys); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
