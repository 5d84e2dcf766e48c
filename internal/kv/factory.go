package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/resilientapi/internal/filex"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	// Path is the SQLite DSN (file path or ":memory:").
	Path  string
	Redis RedisConfig
}

// Open builds the Store named by cfg.Driver. An empty driver means SQLite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = "resilientapi.db"
		}
		if isFilePath(path) {
			if _, err := filex.EnsureParentDir(path); err != nil {
				return nil, fmt.Errorf("failed to prepare sqlite directory: %w", err)
			}
		}
		return OpenSQLite(ctx, path)
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported kv driver %q", cfg.Driver)
	}
}

// isFilePath reports whether dsn names a plain file rather than ":memory:"
// or a "file:" URI.
func isFilePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}
