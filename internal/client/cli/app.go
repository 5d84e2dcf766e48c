package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/resilientapi/internal/client/cache"
	"github.com/dmitrijs2005/resilientapi/internal/client/client"
	"github.com/dmitrijs2005/resilientapi/internal/client/config"
	"github.com/dmitrijs2005/resilientapi/internal/client/netmon"
	"github.com/dmitrijs2005/resilientapi/internal/client/queue"
	"github.com/dmitrijs2005/resilientapi/internal/client/tokenstore"
	"github.com/dmitrijs2005/resilientapi/internal/kv"
	"github.com/dmitrijs2005/resilientapi/internal/logging"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	store   kv.Store
	client  *client.Client
	queue   *queue.Queue
	monitor *netmon.Monitor

	reader *bufio.Reader
	out    io.Writer

	closeOnce sync.Once
}

// NewApp opens the configured store and wires the pipeline around it:
// token store, cache, queue, client and network monitor. Persisted state is
// loaded before it returns.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.NewText(os.Stderr, c.LogLevel)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger, bufio.NewReader(os.Stdin), os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, in *bufio.Reader, out io.Writer) (*App, error) {
	store, err := kv.Open(ctx, kv.Config{
		Driver: c.StoreDriver,
		Path:   c.StorePath,
		Redis:  kv.RedisConfig{Addr: c.RedisAddr, Prefix: c.RedisPrefix},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.StoreDriver, err)
	}

	a := &App{config: c, log: logger, store: store, reader: in, out: out}

	a.queue = queue.New(store,
		queue.WithLogger(logger.With("component", "queue")),
		queue.WithRequeuePolicy(client.IsRetryable),
	)
	a.client = client.New(c.BaseURL,
		tokenstore.New(store),
		cache.New(store, cache.WithLogger(logger.With("component", "cache"))),
		a.queue,
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(logger.With("component", "client")),
		client.WithReplayRate(c.ReplayRPS, 1),
		client.WithOnDropped(a.reportDropped),
	)
	a.monitor = netmon.New(netmon.WithLogger(logger.With("component", "netmon")))

	if err := a.client.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to restore client state: %w", err)
	}
	return a, nil
}

func (a *App) reportDropped(d queue.Dropped) {
	printlnFn(fmt.Sprintf("Dropped queued %s %s: %v", d.Request.Method, d.Request.URL, d.Err))
}

// Run subscribes the client to connectivity events, starts the health
// prober and blocks in the REPL until the user exits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	unsubscribe, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	if a.config.OnlineCheckInterval > 0 {
		go a.monitor.Watch(watchCtx, a.config.OnlineCheckInterval, netmon.HTTPProbe(&http.Client{}, a.healthURL()))
	}

	a.log.Info(ctx, "client started", "base_url", a.config.BaseURL, "store", a.config.StoreDriver, "pending", a.client.Pending())
	a.client.Resume(ctx)
	printlnFn("Resilient API client (type 'help' for commands)")

	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

// connect routes monitor events to the client.
func (a *App) connect(ctx context.Context) (func(), error) {
	return a.monitor.Subscribe(func(e netmon.Event) {
		a.client.OnConnectivityChange(ctx, e.IsConnected)
	})
}

// Close waits for background drains and closes the store.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		_ = a.client.Close()
		err = a.store.Close()
	})
	return err
}

func (a *App) healthURL() string {
	return strings.TrimRight(a.config.BaseURL, "/") + "/" + strings.TrimLeft(a.config.HealthPath, "/")
}

func (a *App) getStatus() string {
	mode := "offline"
	if a.client.IsOnline() {
		mode = "online"
	}
	if n := a.client.Pending(); n > 0 {
		return fmt.Sprintf("(%s, %d queued)", mode, n)
	}
	return fmt.Sprintf("(%s)", mode)
}
