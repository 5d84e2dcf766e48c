package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/flagx"
)

var knownFlags = []string{"-a", "-t", "-d", "-f", "-r", "-p", "-health", "-i", "-rps", "-l"}

// parseFlags overlays cfg with command-line flags. Only the flags listed in
// knownFlags are parsed, so -c/-config and flags of other packages are left
// alone. Invalid values panic.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "backend base URL")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "per-request timeout")
	fs.StringVar(&cfg.StoreDriver, "d", cfg.StoreDriver, "storage driver: sqlite, redis or memory")
	fs.StringVar(&cfg.StorePath, "f", cfg.StorePath, "sqlite database file")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.RedisPrefix, "p", cfg.RedisPrefix, "redis key prefix")
	fs.StringVar(&cfg.HealthPath, "health", cfg.HealthPath, "path probed for connectivity")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.Float64Var(&cfg.ReplayRPS, "rps", cfg.ReplayRPS, "queued request replays per second, 0 for unlimited")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
}
