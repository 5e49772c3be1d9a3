// Package health implements Kubernetes-style liveness and readiness probes.
//
// Registered checks run on their own background tickers. Consecutive
// failure and success thresholds prevent a single slow check from flapping
// the probe state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports the health of one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// probe is one registered check plus its runtime state. The consecutive
// counters are touched only by the single loop goroutine; ok and lastErr
// are also read by HTTP handlers and therefore atomic.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	ok      atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	p.ok.Store(true)
	return p
}

// tick runs the check once and applies the thresholds. Single goroutine only.
func (p *probe) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.successes = 0
		if p.fails++; p.fails >= defaultFailureThreshold {
			p.ok.Store(false)
		}
		return
	}
	p.fails = 0
	if p.successes++; p.successes >= defaultSuccessThreshold {
		p.ok.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.ok.Load() {
		return "", false
	}
	if perr := p.lastErr.Load(); perr != nil && *perr != nil {
		return (*perr).Error(), true
	}
	return "check is unhealthy", true
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Health tracks liveness and readiness probes for a service. The zero state
// is not ready; call SetReady(true) after initialization completes and
// SetReady(false) when shutdown begins.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check answering "is this process functional".
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a check answering "can this process take
// traffic", such as database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one goroutine per registered probe. Register all checks
// before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service was marked ready and every readiness
// probe is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.ok.Load() {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the /livez probe: 200 while all liveness checks pass,
// 503 with the failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := append([]*probe{}, h.liveness...)
	h.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves the /readyz probe. It fails while the service has not
// been marked ready or any readiness check is failing.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := append([]*probe{}, h.readiness...)
	h.mu.RUnlock()

	failing := failures(probes)
	if !ready {
		failing["_readiness"] = "service is not ready"
	}
	writeStatus(w, failing)
}

func failures(probes []*probe) map[string]string {
	failing := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			failing[p.name] = msg
		}
	}
	return failing
}

func writeStatus(w http.ResponseWriter, failing map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failing) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failing}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
