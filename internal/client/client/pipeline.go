package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
)

// call is one logical request travelling through the pipeline:
// injectAuth → dispatch → Normalize → applyPolicy.
type call struct {
	method  string
	path    string
	body    json.RawMessage
	headers map[string]string
	cache   *CachePolicy
	timeout time.Duration
	// replay marks calls made by a drain; they are requeued by the queue
	// itself and must not be enqueued a second time.
	replay bool
}

func newCall(method, path string, body json.RawMessage, opts []CallOption) *call {
	c := &call{method: method, path: path, body: body}
	for _, o := range opts {
		o(c)
	}
	return c
}

func isRead(method string) bool {
	return method == http.MethodGet
}

// response is what the transport stage hands to the rest of the pipeline.
type response struct {
	Status int
	Header http.Header
	Body   []byte
}

// execute runs a call through every stage and returns the payload to decode.
func (c *Client) execute(ctx context.Context, cl *call) (json.RawMessage, error) {
	// dispatch, cache writes and enqueues complete even if the caller gives up
	ctx = context.WithoutCancel(ctx)
	c.totalReqs.Add(1)

	var (
		res *response
		err error
	)
	if c.IsOnline() {
		res, err = c.dispatch(ctx, cl)
	} else {
		err = &NetworkError{Err: ErrOffline}
	}

	if err == nil {
		if isRead(cl.method) && cl.cache != nil {
			if serr := c.cache.Save(ctx, cl.cache.Key, res.Body, cl.cache.TTL); serr != nil {
				c.cfg.log.Warn(ctx, "cache write-through failed", "key", cl.cache.Key, "error", serr)
			}
		}
		return res.Body, nil
	}

	return c.applyPolicy(ctx, cl, Normalize(err))
}

// injectAuth sets the bearer header from the token store, if a token is set.
func (c *Client) injectAuth(req *http.Request) {
	if token, ok := c.tokens.Get(); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// dispatch builds and sends the request. Any non-2xx status comes back as a
// ResponseError alongside the response.
func (c *Client) dispatch(ctx context.Context, cl *call) (*response, error) {
	timeout := cl.timeout
	if timeout <= 0 {
		timeout = c.cfg.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.resolve(cl.path), body)
	if err != nil {
		return nil, &UnexpectedError{Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.headers {
		req.Header.Set(k, v)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}
	c.injectAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Normalize(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.maxResponseSize))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	res := &response{Status: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, newResponseError(resp.StatusCode, data)
	}
	return res, nil
}

// applyPolicy decides what a normalized failure means for this call.
// A 401 is handled first so an expired credential is never mistaken for a
// network problem.
func (c *Client) applyPolicy(ctx context.Context, cl *call, err error) (json.RawMessage, error) {
	var re *ResponseError
	if errors.As(err, &re) && re.Status == http.StatusUnauthorized {
		c.unauthorized.Add(1)
		if cerr := c.tokens.Clear(ctx); cerr != nil {
			c.cfg.log.Error(ctx, "failed to clear token after 401", "error", cerr)
		}
		c.cfg.log.Warn(ctx, "credential rejected, token cleared", "method", cl.method, "path", cl.path)
		return nil, err
	}

	var ne *NetworkError
	if !errors.As(err, &ne) {
		return nil, err
	}
	c.networkErrors.Add(1)

	if isRead(cl.method) {
		if cl.cache == nil {
			return nil, err
		}
		if payload, ok := c.cache.Read(ctx, cl.cache.Key, true); ok {
			c.cacheFallbacks.Add(1)
			c.cfg.log.Debug(ctx, "served stale cache entry", "key", cl.cache.Key, "error", ne.Err)
			return payload, nil
		}
		return nil, err
	}

	if cl.replay {
		return nil, err
	}

	qr, qerr := c.queue.Enqueue(ctx, queue.Request{
		URL:     cl.path,
		Method:  cl.method,
		Body:    cl.body,
		Headers: cl.headers,
	})
	if qerr != nil {
		c.cfg.log.Error(ctx, "failed to queue request", "method", cl.method, "path", cl.path, "error", qerr)
		return nil, err
	}
	c.queued.Add(1)
	ne.QueuedID = qr.ID
	return nil, err
}

// resolve joins path to the base URL; absolute URLs are used as is.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if c.baseURL == "" {
		return path
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
