package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/outletpos/syncengine/internal/logging"
)

// Monitor is a Provider backed by a periodic liveness probe, typically the
// remote API's /health endpoint. It starts offline and flips online after
// the first successful probe.
type Monitor struct {
	probe    func(ctx context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	seq    int
	subs   map[int]func(online bool)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor builds a monitor around probe. interval is how often the probe
// runs; each probe is bounded by timeout.
func NewMonitor(probe func(ctx context.Context) error, interval, timeout time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		log:      log,
		subs:     make(map[int]func(bool)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the probe loop. It probes once immediately so callers get
// an answer without waiting a full interval.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.check(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.check(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the probe loop and waits for it to exit.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(probeCtx)
	cancel()

	m.set(ctx, err == nil)
}

func (m *Monitor) set(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if online {
		m.log.Info(ctx, "connectivity regained")
	} else {
		m.log.Warn(ctx, "connectivity lost")
	}

	for _, fn := range fns {
		fn(online)
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.seq
	m.seq++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
