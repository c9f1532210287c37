// Package health probes the backends the server depends on and keeps the
// last known status of each for the readiness endpoint.
package health

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Pinger is satisfied by store.Store and anything else with a Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(component string, success bool)

// Status is the last known state of one component.
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	FailCount int       `json:"failCount"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Checker runs periodic probes.
type Checker struct {
	mu        sync.Mutex
	probes    map[string]Pinger
	statuses  map[string]*Status
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker with no probes.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		probes:   make(map[string]Pinger),
		statuses: make(map[string]*Status),
		cfg:      cfg,
		logger:   logger,
	}
}

// Add registers a component. Components start out healthy.
func (h *Checker) Add(component string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[component] = p
	h.statuses[component] = &Status{Component: component, Healthy: true}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-quit:
			return
		}
	}
}

// CheckAll probes every component concurrently. A component turns unhealthy
// after FailThreshold consecutive failures and healthy on the next success.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]Pinger, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Ping(pctx)
			cancel()
			h.observe(name, err)
		}(name, p)
	}
	wg.Wait()
}

func (h *Checker) observe(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.statuses[name]
	st.CheckedAt = time.Now().UTC()

	if err == nil {
		if !st.Healthy {
			h.logger.Info("health: recovered", zap.String("component", name))
		}
		st.Healthy = true
		st.FailCount = 0
		st.LastError = ""
		return
	}

	st.FailCount++
	st.LastError = err.Error()
	if st.FailCount == h.cfg.FailThreshold {
		st.Healthy = false
		h.logger.Warn("health: degraded",
			zap.String("component", name),
			zap.Int("fail_count", st.FailCount),
			zap.Error(err),
		)
	}
}

// Snapshot returns the status of every component sorted by name, and
// whether all of them are healthy.
func (h *Checker) Snapshot() ([]Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Status, 0, len(h.statuses))
	ok := true
	for _, st := range h.statuses {
		out = append(out, *st)
		ok = ok && st.Healthy
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out, ok
}
