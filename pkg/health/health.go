// Package health provides liveness and readiness probe endpoints. Registered
// checks run periodically in the background; the HTTP handlers only read the
// latest recorded state, so probes stay cheap under load.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
}

func (c *check) run(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.fn(cctx)
	c.healthy.Store(err == nil)
	if err != nil {
		c.lastErr.Store(&err)
	}
}

// Service tracks liveness and readiness checks and serves probe endpoints.
type Service struct {
	mu        sync.Mutex
	liveness  []*check
	readiness []*check
	ready     atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns an empty Service. Readiness starts false until SetReady(true).
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a check that gates /livez.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	s.liveness = append(s.liveness, c)
}

// AddReadinessCheck registers a check that gates /readyz.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	s.readiness = append(s.readiness, c)
}

// SetReady flips the overall readiness gate, independent of check results.
// Used to drain before shutdown.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start launches the background check loop at the given interval.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.runAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runAll(ctx)
			}
		}
	}()
}

// Stop halts the background loop and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.mu.Lock()
	checks := make([]*check, 0, len(s.liveness)+len(s.readiness))
	checks = append(checks, s.liveness...)
	checks = append(checks, s.readiness...)
	s.mu.Unlock()
	for _, c := range checks {
		c.run(ctx)
	}
}

type probeStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func serveProbe(w http.ResponseWriter, healthy bool, checks []*check) {
	status := probeStatus{Status: "ok", Checks: make(map[string]string, len(checks))}
	code := http.StatusOK
	for _, c := range checks {
		if c.healthy.Load() {
			status.Checks[c.name] = "ok"
			continue
		}
		msg := "failed"
		if errp := c.lastErr.Load(); errp != nil {
			msg = (*errp).Error()
		}
		status.Checks[c.name] = msg
		healthy = false
	}
	if !healthy {
		status.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// LiveEndpoint serves the liveness probe.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.liveness...)
	s.mu.Unlock()
	serveProbe(w, true, checks)
}

// ReadyEndpoint serves the readiness probe.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.readiness...)
	s.mu.Unlock()
	serveProbe(w, s.ready.Load(), checks)
}

// GoroutineCountCheck fails when the process exceeds maxGoroutines, a cheap
// leak tripwire.
func GoroutineCountCheck(maxGoroutines int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > maxGoroutines {
			return fmt.Errorf("%d goroutines running, limit %d", n, maxGoroutines)
		}
		return nil
	}
}
