package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
)

// IsRetryable is the requeue policy for replayed requests. Network failures,
// cancellations and 401s keep the request; any other failure drops it, since
// sending the same payload again would fail the same way.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status == http.StatusUnauthorized
	}
	return false
}

// OnConnectivityChange records the new state. It starts a background drain on
// the offline → online edge and reports whether it did.
func (c *Client) OnConnectivityChange(ctx context.Context, isOnline bool) bool {
	was := c.online.Swap(isOnline)
	if was == isOnline {
		return false
	}
	if !isOnline {
		c.cfg.log.Info(ctx, "client offline, requests will be queued")
		return false
	}

	c.cfg.log.Info(ctx, "client back online, draining queue", "pending", c.queue.Size())
	return c.startDrain(ctx)
}

// Resume starts a background drain of requests restored by Init. The
// connectivity edge never fires for a client that starts online, so callers
// run this once after Init. It reports whether a drain was started.
func (c *Client) Resume(ctx context.Context) bool {
	if !c.IsOnline() || c.queue.Size() == 0 {
		return false
	}
	c.cfg.log.Info(ctx, "resuming queued requests", "pending", c.queue.Size())
	return c.startDrain(ctx)
}

func (c *Client) startDrain(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Drain(context.WithoutCancel(ctx)); err != nil {
			c.cfg.log.Warn(ctx, "queue drain failed", "error", err)
		}
	}()
	return true
}

// Drain replays every queued request once. Concurrent calls share a single
// pass and its result.
func (c *Client) Drain(ctx context.Context) (queue.DrainResult, error) {
	if !c.IsOnline() {
		return queue.DrainResult{}, &NetworkError{Err: ErrOffline}
	}

	v, err, _ := c.drains.Do("drain", func() (any, error) {
		res, err := c.queue.Drain(ctx, c.replay)
		c.replayed.Add(int64(res.Replayed))
		c.dropped.Add(int64(len(res.Dropped)))
		if c.cfg.onDropped != nil {
			for _, d := range res.Dropped {
				c.cfg.onDropped(d)
			}
		}
		if res.Replayed > 0 || res.Requeued > 0 || len(res.Dropped) > 0 {
			c.cfg.log.Info(ctx, "queue drained",
				"replayed", res.Replayed, "requeued", res.Requeued, "dropped", len(res.Dropped))
		}
		return res, err
	})
	res, _ := v.(queue.DrainResult)
	return res, err
}

// replay sends a queued request through the same pipeline as a live call.
// It never enqueues; the queue decides what happens to a failure.
func (c *Client) replay(ctx context.Context, r queue.QueuedRequest) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := c.execute(ctx, &call{
		method:  r.Method,
		path:    r.URL,
		body:    r.Body,
		headers: r.Headers,
		replay:  true,
	})
	return err
}
