package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/resilientapi/internal/client/cache"
	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
	"github.com/dmitrijs2005/resilientapi/internal/client/tokenstore"
	"github.com/dmitrijs2005/resilientapi/internal/kv"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type received struct {
	Method  string
	Path    string
	Body    string
	Headers http.Header
}

// backend is a fake API. Any bearer token it sees must be an unexpired
// HS256 JWT signed with key, otherwise it answers 401.
type backend struct {
	key []byte
	srv *httptest.Server

	mu   sync.Mutex
	reqs []received

	// onOrder, when set, runs before /orders answers.
	onOrder func()
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{key: []byte("test-signing-key")}

	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []product{{ID: "p1", Name: "Widget"}, {ID: "p2", Name: "Gadget"}})
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		hook := b.onOrder
		b.mu.Unlock()
		if hook != nil {
			hook()
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
	})
	mux.HandleFunc("/reject", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "invalid order",
			"details": map[string]string{"field": "qty"},
		})
	})
	mux.HandleFunc("/login-required", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "<html>not json</html>")
	})

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.reqs = append(b.reqs, received{Method: r.Method, Path: r.URL.Path, Body: string(body), Headers: r.Header.Clone()})
		b.mu.Unlock()

		if h := r.Header.Get("Authorization"); h != "" {
			if !b.validBearer(h) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
				return
			}
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) validBearer(h string) bool {
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return false
	}
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return b.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

func (b *backend) token(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	require.NoError(t, err)
	return s
}

func (b *backend) requests() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]received, len(b.reqs))
	copy(out, b.reqs)
	return out
}

func (b *backend) count(path string) int {
	n := 0
	for _, r := range b.requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	c      *Client
	be     *backend
	mem    *kv.Memory
	tokens *tokenstore.Store
	cache  *cache.Cache
	queue  *queue.Queue
	clock  *clock
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	be := newBackend(t)
	mem := kv.NewMemory()
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	tokens := tokenstore.New(mem)
	rc := cache.New(mem, cache.WithClock(clk.Now))
	q := queue.New(mem, queue.WithRequeuePolicy(IsRetryable))

	c := New(be.srv.URL, tokens, rc, q, opts...)
	t.Cleanup(func() { _ = c.Close() })

	return &env{c: c, be: be, mem: mem, tokens: tokens, cache: rc, queue: q, clock: clk}
}

func TestClient_Get_DecodesAndSendsBearer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, WithDefaultHeader("X-Client", "pos-7"))
	tok := e.be.token(t, time.Hour)
	require.NoError(t, e.c.SetAuthToken(ctx, tok))

	var got []product
	require.NoError(t, e.c.Get(ctx, "/products", &got, WithHeader("X-Request-Id", "abc")))
	assert.Equal(t, []product{{ID: "p1", Name: "Widget"}, {ID: "p2", Name: "Gadget"}}, got)

	reqs := e.be.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+tok, reqs[0].Headers.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Headers.Get("Accept"))
	assert.Equal(t, "pos-7", reqs[0].Headers.Get("X-Client"))
	assert.Equal(t, "abc", reqs[0].Headers.Get("X-Request-Id"))
}

func TestClient_NoTokenNoAuthorizationHeader(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.c.Get(context.Background(), "/products", nil))
	assert.Empty(t, e.be.requests()[0].Headers.Get("Authorization"))
}

func TestGetJSON(t *testing.T) {
	e := newEnv(t)
	got, err := GetJSON[[]product](context.Background(), e.c, "/products")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	var out map[string]bool
	require.NoError(t, e.c.Post(ctx, "/orders", map[string]int{"qty": 3}, &out))
	assert.True(t, out["ok"])

	r := e.be.requests()[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.JSONEq(t, `{"qty":3}`, r.Body)
	assert.Equal(t, "application/json", r.Headers.Get("Content-Type"))
}

func TestClient_ExpiredToken_ClearsCredential(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.c.SetAuthToken(ctx, e.be.token(t, -time.Minute)))

	err := e.c.Get(ctx, "/products", nil, WithCache("products", time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "token expired", re.Message)

	_, ok := e.tokens.Get()
	assert.False(t, ok)
	_, ok, err = e.mem.Get(ctx, tokenstore.StorageKey)
	require.NoError(t, err)
	assert.False(t, ok, "durable token must be removed too")

	_, ok = e.cache.Read(ctx, "products", true)
	assert.False(t, ok, "401 responses are never cached")
	assert.EqualValues(t, 1, e.c.Stats().Unauthorized)
}

func TestClient_Unauthorized_WriteIsNotQueued(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.c.SetAuthToken(ctx, "not-a-jwt"))

	err := e.c.Post(ctx, "/orders", map[string]int{"qty": 1}, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, e.c.Pending())

	_, ok := e.tokens.Get()
	assert.False(t, ok)
}

func TestClient_UnauthorizedWithoutToken_StillSurfaces(t *testing.T) {
	e := newEnv(t)
	err := e.c.Get(context.Background(), "/login-required", nil)

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "login required", re.Message)
}

func TestClient_ResponseError_PropagatedUnchanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	err := e.c.Post(ctx, "/reject", map[string]int{"qty": -1}, nil)

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "invalid order", re.Message)
	assert.JSONEq(t, `{"field":"qty"}`, string(re.Details))
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, e.c.Pending(), "only network failures are queued")
}

func TestClient_CacheWriteThroughAndStaleFallback(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	var first []product
	require.NoError(t, e.c.Get(ctx, "/products", &first, WithCache("products", 5*time.Second)))

	_, ok := e.cache.Read(ctx, "products", false)
	require.True(t, ok, "successful GET must be written through")

	e.clock.Advance(time.Hour)
	e.be.srv.Close()

	var second []product
	require.NoError(t, e.c.Get(ctx, "/products", &second, WithCache("products", 5*time.Second)))
	assert.Equal(t, first, second)

	st := e.c.Stats()
	assert.EqualValues(t, 1, st.CacheFallbacks)
	assert.EqualValues(t, 1, st.NetworkErrors)
}

func TestClient_CacheMissOnNetworkFailure(t *testing.T) {
	e := newEnv(t)
	e.be.srv.Close()

	err := e.c.Get(context.Background(), "/products", nil, WithCache("products", time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Empty(t, ne.QueuedID, "reads are never queued")
	assert.Zero(t, e.c.Pending())
}

func TestClient_GetWithoutCachePolicy_NoFallback(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.cache.Save(ctx, "products", json.RawMessage(`[]`), time.Minute))
	e.be.srv.Close()

	err := e.c.Get(ctx, "/products", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_NetworkFailureQueuesWrite(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	url := e.be.srv.URL + "/orders"
	e.be.srv.Close()

	err := e.c.Put(ctx, url, map[string]string{"status": "paid"}, nil, WithHeader("Idempotency-Key", "k1"))
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	require.NotEmpty(t, ne.QueuedID)
	assert.Contains(t, err.Error(), ne.QueuedID)

	pending := e.queue.Snapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, ne.QueuedID, pending[0].ID)
	assert.Equal(t, http.MethodPut, pending[0].Method)
	assert.Equal(t, url, pending[0].URL)
	assert.JSONEq(t, `{"status":"paid"}`, string(pending[0].Body))
	assert.Equal(t, "k1", pending[0].Headers["Idempotency-Key"])

	_, ok, err := e.mem.Get(ctx, queue.StorageKey)
	require.NoError(t, err)
	assert.True(t, ok, "queue is persisted before the call returns")
}

func TestClient_OfflinePostQueuedThenReplayedOnReconnect(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	assert.False(t, e.c.OnConnectivityChange(ctx, false))
	assert.False(t, e.c.IsOnline())

	err := e.c.Post(ctx, "/orders", map[string]string{"sku": "A"}, nil, WithHeader("X-Store", "12"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOffline)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, e.be.requests(), "offline client must not dispatch")
	assert.Equal(t, 1, e.c.Pending())

	assert.True(t, e.c.OnConnectivityChange(ctx, true))
	require.NoError(t, e.c.Close())

	reqs := e.be.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.JSONEq(t, `{"sku":"A"}`, reqs[0].Body)
	assert.Equal(t, "12", reqs[0].Headers.Get("X-Store"))
	assert.Zero(t, e.c.Pending())
	assert.EqualValues(t, 1, e.c.Stats().Replayed)
}

func TestClient_OfflineGetServesStaleCache(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.cache.Save(ctx, "products", json.RawMessage(`[{"id":"p9","name":"Old"}]`), time.Second))
	e.clock.Advance(time.Minute)

	e.c.OnConnectivityChange(ctx, false)

	var got []product
	require.NoError(t, e.c.Get(ctx, "/products", &got, WithCache("products", time.Second)))
	assert.Equal(t, []product{{ID: "p9", Name: "Old"}}, got)
	assert.Empty(t, e.be.requests())
}

func TestClient_OnConnectivityChange_Edges(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	assert.True(t, e.c.IsOnline(), "starts online")
	assert.False(t, e.c.OnConnectivityChange(ctx, true), "online → online is not an edge")
	assert.False(t, e.c.OnConnectivityChange(ctx, false))
	assert.False(t, e.c.OnConnectivityChange(ctx, false))
	assert.True(t, e.c.OnConnectivityChange(ctx, true))
}

func TestClient_NoDrainAfterClose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.c.OnConnectivityChange(ctx, false)
	require.NoError(t, e.c.Close())

	assert.False(t, e.c.OnConnectivityChange(ctx, true))
	assert.True(t, e.c.IsOnline())
}

func TestClient_Drain_ReplayPolicy(t *testing.T) {
	ctx := context.Background()
	var dropped []queue.Dropped
	e := newEnv(t, WithOnDropped(func(d queue.Dropped) { dropped = append(dropped, d) }), WithReplayRate(1000, 1))

	e.c.OnConnectivityChange(ctx, false)
	for _, path := range []string{"/orders", "/reject", "/login-required", "/orders"} {
		require.Error(t, e.c.Post(ctx, path, map[string]string{"p": path}, nil))
	}
	require.Equal(t, 4, e.c.Pending())

	e.c.online.Store(true)
	res, err := e.c.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Replayed)
	assert.Equal(t, 1, res.Requeued, "401 keeps the write for a later pass")
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "/reject", res.Dropped[0].Request.URL)

	require.Len(t, dropped, 1)
	assert.Equal(t, res.Dropped[0].Request.ID, dropped[0].Request.ID)

	left := e.queue.Snapshot()
	require.Len(t, left, 1)
	assert.Equal(t, "/login-required", left[0].URL)
	assert.Equal(t, 1, left[0].Attempts)

	st := e.c.Stats()
	assert.EqualValues(t, 2, st.Replayed)
	assert.EqualValues(t, 1, st.Dropped)
	assert.Equal(t, 1, st.Pending)
}

func TestClient_Drain_NetworkFailureRequeuesWithoutDuplicating(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	url := e.be.srv.URL + "/orders"
	e.be.srv.Close()

	require.Error(t, e.c.Delete(ctx, url, nil))
	require.Equal(t, 1, e.c.Pending())

	res, err := e.c.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requeued)
	assert.Equal(t, 1, e.c.Pending(), "replay failures must not enqueue a second copy")
}

func TestClient_Drain_Offline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.c.OnConnectivityChange(ctx, false)

	_, err := e.c.Drain(ctx)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestClient_Drain_ConcurrentCallsShareOnePass(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.be.mu.Lock()
	e.be.onOrder = func() {
		once.Do(func() { close(started) })
		<-release
	}
	e.be.mu.Unlock()

	e.c.OnConnectivityChange(ctx, false)
	require.Error(t, e.c.Post(ctx, "/orders", map[string]int{"n": 1}, nil))
	e.c.online.Store(true)

	results := make(chan queue.DrainResult, 2)
	go func() {
		res, _ := e.c.Drain(ctx)
		results <- res
	}()
	<-started
	go func() {
		res, _ := e.c.Drain(ctx)
		results <- res
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	r1, r2 := <-results, <-results
	assert.Equal(t, 1, r1.Replayed)
	assert.Equal(t, 1, r2.Replayed)
	assert.Equal(t, 1, e.be.count("/orders"))
}

func TestClient_CallerCancellationDoesNotAbortWrite(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.c.Post(ctx, "/orders", map[string]int{"n": 1}, nil))
	assert.Equal(t, 1, e.be.count("/orders"))
}

func TestClient_TimeoutIsNetworkError(t *testing.T) {
	e := newEnv(t)

	err := e.c.Get(context.Background(), "/slow", nil, WithCallTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_UndecodableResponse(t *testing.T) {
	e := newEnv(t)

	var out map[string]any
	err := e.c.Get(context.Background(), "/garbage", &out)

	var ue *UnexpectedError
	require.ErrorAs(t, err, &ue)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClient_MalformedURLIsNotQueued(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c := New("ftp://example.invalid", e.tokens, e.cache, e.queue)

	err := c.Post(ctx, "/orders", map[string]int{"n": 1}, nil)
	require.Error(t, err)

	var ue *UnexpectedError
	require.ErrorAs(t, err, &ue)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, c.Pending())
	assert.Zero(t, c.Stats().Queued)
}

func TestClient_Drain_DropsMalformedRequest(t *testing.T) {
	ctx := context.Background()
	var dropped []queue.Dropped
	e := newEnv(t)
	c := New("ftp://example.invalid", e.tokens, e.cache, e.queue,
		WithOnDropped(func(d queue.Dropped) { dropped = append(dropped, d) }))

	c.OnConnectivityChange(ctx, false)
	require.Error(t, c.Post(ctx, "/orders", map[string]int{"n": 1}, nil))
	require.Equal(t, 1, c.Pending())

	c.online.Store(true)
	res, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Requeued)
	require.Len(t, res.Dropped, 1)
	require.Len(t, dropped, 1)
	assert.Zero(t, c.Pending())
}

func TestClient_EmptyBodyIsCached(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.c.Get(ctx, "/empty", nil, WithCache("empty", time.Minute)))

	payload, ok := e.cache.Read(ctx, "empty", true)
	require.True(t, ok)
	assert.Equal(t, "null", string(payload))

	e.c.OnConnectivityChange(ctx, false)
	var out map[string]any
	require.NoError(t, e.c.Get(ctx, "/empty", &out, WithCache("empty", time.Minute)))
	assert.Nil(t, out)
	assert.EqualValues(t, 1, e.c.Stats().CacheFallbacks)
}

func TestClient_Resume(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	assert.False(t, e.c.Resume(ctx), "nothing queued")

	e.c.OnConnectivityChange(ctx, false)
	require.Error(t, e.c.Post(ctx, "/orders", map[string]int{"n": 1}, nil))
	assert.False(t, e.c.Resume(ctx), "offline")

	e.c.online.Store(true)
	assert.True(t, e.c.Resume(ctx))
	require.NoError(t, e.c.Close())

	assert.Equal(t, 1, e.be.count("/orders"))
	assert.Zero(t, e.c.Pending())

	e.c.OnConnectivityChange(ctx, false)
	require.Error(t, e.c.Post(ctx, "/orders", map[string]int{"n": 2}, nil))
	e.c.online.Store(true)
	assert.False(t, e.c.Resume(ctx), "closed")
	assert.Equal(t, 1, e.c.Pending())
}

func TestClient_UnencodableBody(t *testing.T) {
	e := newEnv(t)

	err := e.c.Post(context.Background(), "/orders", map[string]any{"bad": make(chan int)}, nil)

	var ue *UnexpectedError
	require.ErrorAs(t, err, &ue)
	assert.Empty(t, e.be.requests())
	assert.Zero(t, e.c.Pending())
}

func TestClient_RawMessageOut(t *testing.T) {
	e := newEnv(t)

	var raw json.RawMessage
	require.NoError(t, e.c.Get(context.Background(), "/products", &raw))
	assert.JSONEq(t, `[{"id":"p1","name":"Widget"},{"id":"p2","name":"Gadget"}]`, string(raw))
}

func TestClient_InitRestoresTokenAndQueue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.c.OnConnectivityChange(ctx, false)
	require.NoError(t, e.c.SetAuthToken(ctx, "persisted"))
	require.Error(t, e.c.Patch(ctx, "/orders", map[string]int{"n": 2}, nil))

	tokens := tokenstore.New(e.mem)
	q := queue.New(e.mem)
	restarted := New(e.be.srv.URL, tokens, cache.New(e.mem), q)
	require.NoError(t, restarted.Init(ctx))

	tok, ok := tokens.Get()
	require.True(t, ok)
	assert.Equal(t, "persisted", tok)
	assert.Equal(t, 1, restarted.Pending())
}

func TestClient_Logout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.c.SetAuthToken(ctx, e.be.token(t, time.Hour)))
	require.NoError(t, e.c.Get(ctx, "/products", nil, WithCache("products", time.Minute)))
	e.c.OnConnectivityChange(ctx, false)
	require.Error(t, e.c.Post(ctx, "/orders", nil, nil))

	require.NoError(t, e.c.Logout(ctx))
	require.NoError(t, e.c.Logout(ctx), "logout is idempotent")

	_, ok := e.tokens.Get()
	assert.False(t, ok)
	_, ok = e.cache.Read(ctx, "products", true)
	assert.False(t, ok)
	assert.Zero(t, e.c.Pending())

	keys, err := e.mem.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_ClearAuthToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.c.SetAuthToken(ctx, "t"))
	require.NoError(t, e.c.ClearAuthToken(ctx))
	require.NoError(t, e.c.ClearAuthToken(ctx))

	require.NoError(t, e.c.Get(ctx, "/products", nil))
	assert.Empty(t, e.be.requests()[0].Headers.Get("Authorization"))
}

func TestClient_Resolve(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://api.local", "/orders", "http://api.local/orders"},
		{"http://api.local/", "orders", "http://api.local/orders"},
		{"http://api.local/v1/", "/orders", "http://api.local/v1/orders"},
		{"http://api.local", "https://cdn.local/x", "https://cdn.local/x"},
		{"", "/orders", "/orders"},
	}
	for _, tt := range tests {
		c := &Client{baseURL: tt.base}
		assert.Equal(t, tt.want, c.resolve(tt.path), "base=%q path=%q", tt.base, tt.path)
	}
}

func TestClient_InjectAuth(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.New(kv.NewMemory())
	c := New("", tokens, cache.New(kv.NewMemory()), queue.New(kv.NewMemory()))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	c.injectAuth(req)
	assert.Empty(t, req.Header.Get("Authorization"))

	require.NoError(t, tokens.Set(ctx, "abc"))
	c.injectAuth(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestClient_ApplyPolicy_PassesUnexpectedThrough(t *testing.T) {
	e := newEnv(t)
	in := &UnexpectedError{Message: "boom"}

	payload, err := e.c.applyPolicy(context.Background(), newCall(http.MethodPost, "/orders", nil, nil), in)
	assert.Nil(t, payload)
	assert.Same(t, in, err)
	assert.Zero(t, e.c.Pending())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", &NetworkError{Err: errors.New("refused")}, true},
		{"offline", &NetworkError{Err: ErrOffline}, true},
		{"unauthorized", &ResponseError{Status: http.StatusUnauthorized}, true},
		{"canceled", context.Canceled, true},
		{"bad request", &ResponseError{Status: http.StatusBadRequest}, false},
		{"server error", &ResponseError{Status: http.StatusInternalServerError}, false},
		{"unexpected", &UnexpectedError{Message: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
