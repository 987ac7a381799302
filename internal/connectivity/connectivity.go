// Package connectivity tracks whether the backend is reachable. State
// changes are debounced so a flapping link does not trigger a drain storm,
// and a short-lived recovered latch lets the UI surface "back online".
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/duetrack/duetrack/internal/metrics"
)

// State is the committed connectivity state.
type State int

const (
	Online State = iota
	Offline
)

func (s State) String() string {
	if s == Offline {
		return "offline"
	}
	return "online"
}

// Prober answers a single reachability check.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// Monitor polls a Prober and commits state transitions only after the
// observed state holds steady for the debounce window. Handlers fire on
// committed transitions, never on flaps inside the window.
type Monitor struct {
	prober          Prober
	logger          *slog.Logger
	probeInterval   time.Duration
	debounceWindow  time.Duration
	recoveredWindow time.Duration
	nowFn           func() time.Time

	mu           sync.Mutex
	state        State
	pending      State
	pendingSince time.Time
	recoveredAt  time.Time
	handlers     []func(State)

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config holds Monitor tuning.
type Config struct {
	ProbeInterval   time.Duration
	DebounceWindow  time.Duration
	RecoveredWindow time.Duration
}

// NewMonitor builds a monitor that starts optimistically online. A nil
// prober always reports online, which keeps tests and single-binary
// deployments simple.
func NewMonitor(prober Prober, cfg Config, logger *slog.Logger) *Monitor {
	if prober == nil {
		prober = ProberFunc(func(context.Context) bool { return true })
	}
	return &Monitor{
		prober:          prober,
		logger:          logger,
		probeInterval:   cfg.ProbeInterval,
		debounceWindow:  cfg.DebounceWindow,
		recoveredWindow: cfg.RecoveredWindow,
		nowFn:           time.Now,
		state:           Online,
		pending:         Online,
	}
}

// State returns the committed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecentlyRecovered reports whether the monitor committed an
// offline-to-online transition within the recovered window.
func (m *Monitor) RecentlyRecovered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recoveredAt.IsZero() {
		return false
	}
	return m.nowFn().Sub(m.recoveredAt) < m.recoveredWindow
}

// OnTransition registers a handler called after each committed transition
// with the new state. Handlers run synchronously on the observing
// goroutine and must not block.
func (m *Monitor) OnTransition(fn func(State)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

// Observe feeds one reachability observation into the debouncer.
func (m *Monitor) Observe(observed State) {
	now := m.nowFn()

	m.mu.Lock()
	if observed == m.state {
		// Back in agreement with the committed state, drop any pending flip.
		m.pending = m.state
		m.pendingSince = time.Time{}
		m.mu.Unlock()
		return
	}

	if observed != m.pending || m.pendingSince.IsZero() {
		m.pending = observed
		m.pendingSince = now
		m.mu.Unlock()
		return
	}

	if now.Sub(m.pendingSince) < m.debounceWindow {
		m.mu.Unlock()
		return
	}

	from := m.state
	m.state = observed
	m.pendingSince = time.Time{}
	if from == Offline && observed == Online {
		m.recoveredAt = now
	}
	handlers := make([]func(State), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "from", from.String(), "to", observed.String())
	metrics.ConnectivityTransitions.WithLabelValues(from.String(), observed.String()).Inc()
	for _, fn := range handlers {
		fn(observed)
	}
}

// SetOnline feeds an external online signal, bypassing the probe but not
// the debounce. Callers that know delivery just succeeded use this to pull
// the monitor back online faster than the poll loop would.
func (m *Monitor) SetOnline() {
	m.Observe(Online)
}

// Recheck runs one probe immediately and feeds the result through the
// debouncer. Returns the raw probe result, not the committed state.
func (m *Monitor) Recheck(ctx context.Context) bool {
	ok := m.prober.Probe(ctx)
	if ok {
		m.Observe(Online)
	} else {
		m.Observe(Offline)
	}
	return ok
}

// Start launches the background poll loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	interval := m.probeInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				m.Recheck(ctx)
				cancel()
			}
		}
	}()
}

// Stop halts the poll loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stopCh, m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
