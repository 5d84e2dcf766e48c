// Package queue keeps an ordered, durably persisted list of mutating requests
// that could not reach the backend, and replays them on demand.
//
// Delivery is at-least-once and FIFO-with-retry: Drain attempts every queued
// request once per pass in enqueue order, so a failing request never blocks
// later ones, and failures go back to the tail for the next pass.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/kv"
	"github.com/dmitrijs2005/resilientapi/internal/logging"
	"github.com/google/uuid"
)

// StorageKey is the durable key holding the JSON-encoded queue.
const StorageKey = "request_queue"

var ErrInvalidMethod = errors.New("only POST, PUT, PATCH and DELETE requests can be queued")

// Request describes a mutating call to be replayed later.
type Request struct {
	URL     string
	Method  string
	Body    json.RawMessage
	Headers map[string]string
}

// QueuedRequest is a Request with its queue identity.
type QueuedRequest struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// EnqueuedAt is a Unix timestamp in milliseconds.
	EnqueuedAt int64  `json:"timestamp"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// ReplayFunc sends a queued request. A nil error means the backend accepted it.
type ReplayFunc func(ctx context.Context, r QueuedRequest) error

// RequeuePolicy reports whether a failed replay goes back to the queue.
// Requests it rejects are dropped and reported in DrainResult.Dropped.
type RequeuePolicy func(err error) bool

// AlwaysRequeue keeps every failed request.
func AlwaysRequeue(error) bool { return true }

// Dropped is a request removed after a non-retryable replay failure.
type Dropped struct {
	Request QueuedRequest
	Err     error
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Replayed int
	Requeued int
	Dropped  []Dropped
}

type Queue struct {
	kv      kv.Store
	log     logging.Logger
	now     func() time.Time
	newID   func() string
	requeue RequeuePolicy

	mu    sync.Mutex
	items []QueuedRequest
	// inflight holds snapshot entries of running drains. They stay in the
	// persisted record until their drain finishes.
	inflight map[string]QueuedRequest
	// gen changes on Clear so drains started earlier do not resurrect requests.
	gen uint64
}

type Option func(*Queue)

func WithLogger(l logging.Logger) Option {
	return func(q *Queue) { q.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

// WithRequeuePolicy replaces AlwaysRequeue.
func WithRequeuePolicy(p RequeuePolicy) Option {
	return func(q *Queue) { q.requeue = p }
}

func New(store kv.Store, opts ...Option) *Queue {
	q := &Queue{
		kv:       store,
		log:      logging.Discard(),
		now:      time.Now,
		newID:    uuid.NewString,
		requeue:  AlwaysRequeue,
		inflight: make(map[string]QueuedRequest),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func validMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Load replaces the in-memory queue with the persisted one. A corrupt record
// is logged and treated as an empty queue.
func (q *Queue) Load(ctx context.Context) error {
	raw, ok, err := q.kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}

	var items []QueuedRequest
	if ok {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			q.log.Warn(ctx, "corrupt request queue discarded", "error", err)
			items = nil
		}
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	if len(items) > 0 {
		q.log.Info(ctx, "request queue restored", "size", len(items))
	}
	return nil
}

// Enqueue appends r and persists the queue before returning. If persisting
// fails the request is not queued.
func (q *Queue) Enqueue(ctx context.Context, r Request) (QueuedRequest, error) {
	if !validMethod(r.Method) {
		return QueuedRequest{}, fmt.Errorf("%w: got %q", ErrInvalidMethod, r.Method)
	}

	qr := QueuedRequest{
		ID:         q.newID(),
		URL:        r.URL,
		Method:     r.Method,
		Body:       r.Body,
		Headers:    r.Headers,
		EnqueuedAt: q.now().UnixMilli(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, qr)
	if err := q.persistLocked(ctx); err != nil {
		q.items = q.items[:len(q.items)-1]
		return QueuedRequest{}, err
	}

	q.log.Info(ctx, "request queued", "id", qr.ID, "method", qr.Method, "url", qr.URL)
	return qr, nil
}

// Drain snapshots and clears the live queue, then replays each snapshot entry
// in order. Failed entries accepted by the requeue policy are appended, in
// their original relative order, after anything enqueued during the drain.
// The resulting queue is persisted once at the end.
//
// A concurrent Drain sees an empty live queue and replays nothing from this
// snapshot. If ctx ends mid-pass, the entries not yet attempted are requeued
// untouched.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (DrainResult, error) {
	q.mu.Lock()
	snapshot := q.items
	q.items = nil
	gen := q.gen
	for _, r := range snapshot {
		q.inflight[r.ID] = r
	}
	q.mu.Unlock()

	var (
		res    DrainResult
		failed []QueuedRequest
	)

	for i, r := range snapshot {
		if ctx.Err() != nil {
			failed = append(failed, snapshot[i:]...)
			break
		}

		err := replay(ctx, r)
		if err == nil {
			res.Replayed++
			q.log.Debug(ctx, "queued request replayed", "id", r.ID)
			continue
		}

		r.Attempts++
		r.LastError = err.Error()
		if q.requeue(err) {
			res.Requeued++
			failed = append(failed, r)
			q.log.Warn(ctx, "queued request replay failed, requeued", "id", r.ID, "attempts", r.Attempts, "error", err)
			continue
		}
		res.Dropped = append(res.Dropped, Dropped{Request: r, Err: err})
		q.log.Error(ctx, "queued request dropped", "id", r.ID, "method", r.Method, "url", r.URL, "error", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range snapshot {
		delete(q.inflight, r.ID)
	}
	if q.gen == gen {
		q.items = append(q.items, failed...)
	}
	if len(snapshot) == 0 {
		return res, nil
	}
	if err := q.persistLocked(context.WithoutCancel(ctx)); err != nil {
		return res, err
	}
	return res, nil
}

// Size returns the number of requests waiting in the live queue.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the live queue in replay order.
func (q *Queue) Snapshot() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedRequest, len(q.items))
	copy(out, q.items)
	return out
}

// Clear empties the queue, including the durable record. Idempotent.
// Requests failing in a drain that is already running are not requeued.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.inflight = make(map[string]QueuedRequest)
	q.gen++
	if err := q.kv.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// persistLocked writes in-flight entries (oldest first) followed by the live
// queue. Callers hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	pending := make([]QueuedRequest, 0, len(q.inflight)+len(q.items))
	for _, r := range q.inflight {
		pending = append(pending, r)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].EnqueuedAt != pending[j].EnqueuedAt {
			return pending[i].EnqueuedAt < pending[j].EnqueuedAt
		}
		return pending[i].ID < pending[j].ID
	})
	pending = append(pending, q.items...)

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}
