// Package config loads runtime configuration for the resilient API client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string       backend base URL
//	-t duration     per-request timeout
//	-d string       storage driver: sqlite, redis or memory
//	-f string       sqlite database file
//	-r string       redis address
//	-p string       redis key prefix
//	-health string  path probed for connectivity
//	-i int          online status check interval (seconds)
//	-rps float      queued request replays per second
//	-l string       log level
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds. Absent fields keep their default:
//
//	{
//	  "base_url": "https://api.example.com",
//	  "request_timeout": "10s",
//	  "store_driver": "redis",
//	  "redis_addr": "127.0.0.1:6379",
//	  "online_check_interval": "3s",
//	  "replay_rps": 2
//	}
package config
