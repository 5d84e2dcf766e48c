package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the resilient API client.
//
// Units: RequestTimeout and OnlineCheckInterval are time.Duration values;
// ReplayRPS is requests per second, 0 meaning unpaced.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration

	StoreDriver string
	StorePath   string
	RedisAddr   string
	RedisPrefix string

	HealthPath          string
	OnlineCheckInterval time.Duration
	ReplayRPS           float64

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 30 * time.Second
	c.StoreDriver = "sqlite"
	c.StorePath = "resilientapi.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisPrefix = "resilientapi:"
	c.HealthPath = "/health"
	c.OnlineCheckInterval = 3 * time.Second
	c.ReplayRPS = 5
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, then the JSON file named by -c or
// -config, then command-line flags. Later sources win. Malformed input
// panics.
func LoadConfig() *Config {
	return load(os.Args[1:])
}

func load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
