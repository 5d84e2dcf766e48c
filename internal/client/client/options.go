package client

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
	"github.com/dmitrijs2005/resilientapi/internal/logging"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Client.
type Option func(*config)

type config struct {
	httpClient      Doer
	timeout         time.Duration
	maxResponseSize int64
	headers         map[string]string
	log             logging.Logger

	replayRPS   float64
	replayBurst int

	onDropped func(queue.Dropped)
}

func defaultConfig() *config {
	return &config{
		timeout:         30 * time.Second,
		maxResponseSize: 10 * 1024 * 1024, // 10 MB
		headers:         map[string]string{},
		log:             logging.Discard(),
		replayBurst:     1,
	}
}

// WithHTTPClient sets the transport. The timeout option is ignored for the
// transport itself but still bounds every call through its context.
func WithHTTPClient(d Doer) Option {
	return func(c *config) { c.httpClient = d }
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResponseSize caps how many response bytes are read.
func WithMaxResponseSize(n int64) Option {
	return func(c *config) { c.maxResponseSize = n }
}

// WithDefaultHeader adds a header sent on every request.
func WithDefaultHeader(key, value string) Option {
	return func(c *config) { c.headers[key] = value }
}

func WithLogger(l logging.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithReplayRate paces replays during a drain. rps <= 0 disables pacing.
func WithReplayRate(rps float64, burst int) Option {
	return func(c *config) {
		c.replayRPS = rps
		if burst > 0 {
			c.replayBurst = burst
		}
	}
}

// WithOnDropped is called for every queued request dropped after a
// non-retryable replay failure.
func WithOnDropped(fn func(queue.Dropped)) Option {
	return func(c *config) { c.onDropped = fn }
}

// CachePolicy enables write-through caching and offline fallback for a GET.
type CachePolicy struct {
	Key string
	TTL time.Duration
}

// CallOption configures a single call.
type CallOption func(*call)

// WithCache caches a successful GET under key for ttl and serves the stale
// entry when the network is unavailable.
func WithCache(key string, ttl time.Duration) CallOption {
	return func(c *call) { c.cache = &CachePolicy{Key: key, TTL: ttl} }
}

// WithHeader sets a request header for this call. Queued requests keep it.
func WithHeader(key, value string) CallOption {
	return func(c *call) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[key] = value
	}
}

// WithCallTimeout overrides the default timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(c *call) { c.timeout = d }
}
