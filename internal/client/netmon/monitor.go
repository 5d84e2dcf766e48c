// Package netmon reports connectivity and delivers transition events to
// subscribers over an event bus.
//
// Connectivity comes either from the platform (call Report on every change)
// or from Watch, which probes the backend periodically and reports edges only.
package netmon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/dmitrijs2005/resilientapi/internal/logging"
)

// Topic is the bus topic carrying Event values.
const Topic = "netmon:connectivity"

// Event is delivered to subscribers on every report.
type Event struct {
	IsConnected bool
}

// Prober checks backend reachability. A nil error means online.
type Prober func(ctx context.Context) error

type Monitor struct {
	bus evbus.Bus
	log logging.Logger

	mu        sync.Mutex
	known     bool
	connected bool
}

type Option func(*Monitor)

func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithBus shares an existing bus instead of a private one.
func WithBus(b evbus.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

func New(opts ...Option) *Monitor {
	m := &Monitor{log: logging.Discard()}
	for _, o := range opts {
		o(m)
	}
	if m.bus == nil {
		m.bus = evbus.New()
	}
	return m
}

// Subscribe registers fn for connectivity events. Handlers run synchronously
// on the reporting goroutine. The returned func unsubscribes.
func (m *Monitor) Subscribe(fn func(Event)) (func(), error) {
	if err := m.bus.Subscribe(Topic, fn); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}
	return func() { _ = m.bus.Unsubscribe(Topic, fn) }, nil
}

// Report records the current connectivity and publishes it.
func (m *Monitor) Report(isConnected bool) {
	m.mu.Lock()
	changed := !m.known || m.connected != isConnected
	m.known, m.connected = true, isConnected
	m.mu.Unlock()

	if changed {
		m.log.Info(context.Background(), "connectivity changed", "online", isConnected)
	}
	m.bus.Publish(Topic, Event{IsConnected: isConnected})
}

// Connected returns the last reported state; known is false before the first report.
func (m *Monitor) Connected() (connected, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, m.known
}

// Watch probes immediately and then every interval until ctx is done,
// reporting only when the result differs from the last known state.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, probe Prober) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout(interval))
		err := probe(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		online := err == nil
		if connected, known := m.Connected(); known && connected == online {
			return
		}
		if err != nil {
			m.log.Debug(ctx, "probe failed", "error", err)
		}
		m.Report(online)
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

func probeTimeout(interval time.Duration) time.Duration {
	const ceiling = 3 * time.Second
	if interval > 0 && interval < ceiling {
		return interval
	}
	return ceiling
}

// HTTPProbe returns a Prober that GETs url. Any HTTP response, whatever its
// status, counts as reachable; only transport failures mean offline.
func HTTPProbe(hc *http.Client, url string) Prober {
	if hc == nil {
		hc = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}
