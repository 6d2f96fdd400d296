// Package health exposes liveness and readiness probes for the API server.
//
// Probes are registered once at startup and then executed by a single
// background scheduler. A probe flips to failing only after several
// consecutive errors, and back to passing after a consecutive success, so a
// single slow database round-trip does not bounce the service out of the
// load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one dependency. A nil return means the dependency is fine.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailAfter = 3
	defaultPassAfter = 1
)

// probe is one registered check plus its sliding pass/fail state. All state
// behind mu; exec runs on the scheduler goroutine while the HTTP endpoints
// read concurrently.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	passing bool
	lastErr error
	fails   int
	passes  int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	// Registered probes count as passing until proven otherwise, so a slow
	// first check does not block startup.
	return &probe{name: name, timeout: timeout, fn: fn, passing: true}
}

// exec runs the probe once and folds the result into the pass/fail counters.
func (p *probe) exec(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= defaultFailAfter {
			p.passing = false
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= defaultPassAfter {
		p.passing = true
	}
}

// state reports whether the probe is passing and its most recent error.
func (p *probe) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passing, p.lastErr
}

// Health aggregates liveness and readiness probes and serves them over HTTP.
type Health struct {
	mu     sync.Mutex
	live   []*probe
	ready  []*probe
	up     bool
	cancel context.CancelFunc
}

// New creates a Health service. It starts not-ready; call SetReady(true)
// once initialization is done.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe that decides whether the process itself
// is still functioning (goroutine leaks, long GC pauses).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, fn))
}

// AddReadinessCheck registers a probe that decides whether the service can
// take traffic (database reachable, cache reachable).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, newProbe(name, timeout, fn))
}

// Start launches the probe scheduler. Each tick runs every registered probe
// once, sequentially, each under its own timeout.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.live...), h.ready...)
	h.mu.Unlock()

	go func() {
		for _, p := range probes {
			p.exec(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range probes {
					p.exec(ctx)
				}
			}
		}
	}()
}

// Stop halts the probe scheduler. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set to false during graceful
// shutdown so the load balancer drains traffic before the listener closes.
func (h *Health) SetReady(up bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.up = up
}

// IsReady reports whether the service should receive traffic: the manual
// gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	up, probes := h.up, append([]*probe(nil), h.ready...)
	h.mu.Unlock()

	if !up {
		return false
	}
	for _, p := range probes {
		if ok, _ := p.state(); !ok {
			return false
		}
	}
	return true
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when every liveness probe passes, else 503
// with the failing probes and their last errors.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := append([]*probe(nil), h.live...)
	h.mu.Unlock()

	writeReport(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 when the manual gate is open and every
// readiness probe passes, else 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	up, probes := h.up, append([]*probe(nil), h.ready...)
	h.mu.Unlock()

	checks := failing(probes)
	if !up {
		checks["_readiness"] = "service is not ready"
	}
	writeReport(w, checks)
}

func failing(probes []*probe) map[string]string {
	checks := make(map[string]string)
	for _, p := range probes {
		ok, err := p.state()
		if ok {
			continue
		}
		if err != nil {
			checks[p.name] = err.Error()
		} else {
			checks[p.name] = "check is unhealthy"
		}
	}
	return checks
}

func writeReport(w http.ResponseWriter, checks map[string]string) {
	report := probeReport{Status: "ok"}
	code := http.StatusOK
	if len(checks) > 0 {
		report.Status = "unhealthy"
		report.Checks = checks
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
