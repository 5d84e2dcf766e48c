package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// TokenStore holds the bearer credential. *tokenstore.Store satisfies it.
type TokenStore interface {
	Set(ctx context.Context, token string) error
	Get() (string, bool)
	LoadPersisted(ctx context.Context) error
	Clear(ctx context.Context) error
}

// ResponseCache stores GET payloads. *cache.Cache satisfies it.
type ResponseCache interface {
	Save(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error
	Read(ctx context.Context, key string, ignoreExpiry bool) (json.RawMessage, bool)
	Clear(ctx context.Context) error
}

// RequestQueue keeps writes that failed for network reasons. *queue.Queue
// satisfies it.
type RequestQueue interface {
	Load(ctx context.Context) error
	Enqueue(ctx context.Context, r queue.Request) (queue.QueuedRequest, error)
	Drain(ctx context.Context, replay queue.ReplayFunc) (queue.DrainResult, error)
	Size() int
	Clear(ctx context.Context) error
}

// Client is the single entry point for backend calls. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	cfg     *config
	http    Doer

	tokens TokenStore
	cache  ResponseCache
	queue  RequestQueue

	online  atomic.Bool
	drains  singleflight.Group
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	totalReqs      atomic.Int64
	networkErrors  atomic.Int64
	cacheFallbacks atomic.Int64
	queued         atomic.Int64
	replayed       atomic.Int64
	dropped        atomic.Int64
	unauthorized   atomic.Int64
}

// New builds a Client for baseURL. The client starts online; connectivity
// changes arrive through OnConnectivityChange.
func New(baseURL string, tokens TokenStore, cache ResponseCache, q RequestQueue, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	c := &Client{
		baseURL: baseURL,
		cfg:     cfg,
		http:    cfg.httpClient,
		tokens:  tokens,
		cache:   cache,
		queue:   q,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if cfg.replayRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.replayRPS), cfg.replayBurst)
	}
	c.online.Store(true)
	return c
}

// Init restores the persisted token and queue.
func (c *Client) Init(ctx context.Context) error {
	return errors.Join(c.LoadAuthToken(ctx), c.queue.Load(ctx))
}

// Close waits for background drains to finish. The stores are owned by the
// caller and stay open.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Client) SetAuthToken(ctx context.Context, token string) error {
	return c.tokens.Set(ctx, token)
}

func (c *Client) ClearAuthToken(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

func (c *Client) LoadAuthToken(ctx context.Context) error {
	return c.tokens.LoadPersisted(ctx)
}

// Logout drops the credential, every cached response and every pending
// request.
func (c *Client) Logout(ctx context.Context) error {
	return errors.Join(
		c.tokens.Clear(ctx),
		c.cache.Clear(ctx),
		c.queue.Clear(ctx),
	)
}

func (c *Client) IsOnline() bool {
	return c.online.Load()
}

// Pending is the number of queued requests waiting for replay.
func (c *Client) Pending() int {
	return c.queue.Size()
}

// Get fetches url and decodes the JSON payload into out. With WithCache a
// network failure is answered from the cache, ignoring its expiry.
func (c *Client) Get(ctx context.Context, url string, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodGet, url, nil, out, opts)
}

// Post sends body as JSON. If the network is unavailable the request is
// queued and the returned *NetworkError carries the queue ID.
func (c *Client) Post(ctx context.Context, url string, body, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPost, url, body, out, opts)
}

func (c *Client) Put(ctx context.Context, url string, body, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPut, url, body, out, opts)
}

func (c *Client) Patch(ctx context.Context, url string, body, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPatch, url, body, out, opts)
}

func (c *Client) Delete(ctx context.Context, url string, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodDelete, url, nil, out, opts)
}

// GetJSON is Get with the result returned by value.
func GetJSON[T any](ctx context.Context, c *Client, url string, opts ...CallOption) (T, error) {
	var out T
	err := c.Get(ctx, url, &out, opts...)
	return out, err
}

func (c *Client) do(ctx context.Context, method, url string, body, out any, opts []CallOption) error {
	raw, err := encodeBody(body)
	if err != nil {
		return err
	}

	payload, err := c.execute(ctx, newCall(method, url, raw, opts))
	if err != nil {
		return err
	}
	return decodeInto(payload, out)
}

func encodeBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return json.RawMessage(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &UnexpectedError{Message: "failed to encode request body", Err: err}
	}
	return data, nil
}

func decodeInto(payload json.RawMessage, out any) error {
	if out == nil || len(payload) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], payload...)
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &UnexpectedError{Message: fmt.Sprintf("failed to decode response into %T", out), Err: err}
	}
	return nil
}
