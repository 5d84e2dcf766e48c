package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/resilientapi/internal/flagx"
	"github.com/dmitrijs2005/resilientapi/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations accept "3s" or
// integer nanoseconds.
type JsonConfig struct {
	BaseURL             string         `json:"base_url"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	StoreDriver         string         `json:"store_driver"`
	StorePath           string         `json:"store_path"`
	RedisAddr           string         `json:"redis_addr"`
	RedisPrefix         string         `json:"redis_prefix"`
	HealthPath          string         `json:"health_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	ReplayRPS           *float64       `json:"replay_rps"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with the fields present in the JSON file named on
// the command line. Without -c/-config it does nothing. Read or decode
// errors panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.StoreDriver, jc.StoreDriver)
	setString(&cfg.StorePath, jc.StorePath)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.RedisPrefix, jc.RedisPrefix)
	setString(&cfg.HealthPath, jc.HealthPath)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.ReplayRPS != nil {
		cfg.ReplayRPS = *jc.ReplayRPS
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
