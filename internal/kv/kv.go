// Package kv defines the durable key-value boundary consumed by the request
// pipeline (token, cache entries, request queue) and its backends.
//
// All values are opaque strings; callers store JSON. Backends:
//
//   - SQLite (default, file or in-memory, goose-migrated)
//   - Redis  (shared or remote storage)
//   - Memory (tests and ephemeral sessions)
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends that were closed.
var ErrClosed = errors.New("kv store closed")

// Store is a string key-value store.
//
// Get returns ok=false (and a nil error) for a missing key. Remove and
// MultiRemove do not fail on missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys []string) error
	// Keys lists all keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
