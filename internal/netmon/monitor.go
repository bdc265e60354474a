// Package netmon observes connectivity to the Pathfinder API.
//
// The monitor is purely observational: it never returns errors to callers,
// and its only consumer-visible effect is notifying subscribers on
// online/offline edges.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pathfinderhq/syncagent/internal/logging"
)

// DefaultProbeInterval is how often connectivity is checked.
const DefaultProbeInterval = 30 * time.Second

// Prober reports whether the server is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes a health endpoint with a short timeout. Any response at
// all counts as online; only transport-level failure counts as offline.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber creates a prober against the given health URL.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Monitor tracks online/offline state and notifies subscribers on changes.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu     sync.RWMutex
	online bool
	subs   map[int]func(online bool)
	nextID int

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewMonitor creates a monitor. The state starts online so a freshly started
// agent drains immediately; the first probe corrects it if the network is
// actually down.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		online:   true,
		subs:     make(map[int]func(bool)),
		stopCh:   make(chan struct{}),
	}
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers a callback invoked on every online/offline edge and
// returns an unsubscribe function. Callbacks run on the monitor goroutine and
// must not block.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline records an externally observed connectivity state, e.g. a request
// that just failed at the transport level. Subscribers fire on edges only.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var callbacks []func(bool)
	if changed {
		for _, fn := range m.subs {
			callbacks = append(callbacks, fn)
		}
	}
	m.mu.Unlock()

	if changed {
		logging.Info("connectivity changed", zap.Bool("online", online))
		for _, fn := range callbacks {
			fn(online)
		}
	}
}

// Start begins periodic probing until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.SetOnline(m.prober.Probe(ctx))
			}
		}
	}()
}

// Stop halts probing. Safe to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
