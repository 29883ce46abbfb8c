package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/paywall-webhook/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness. The server flips it off when shutdown begins so
// load balancers drain traffic before connections close.
func SetReady(v bool) { ready.Store(v) }

// IsReady reports the current readiness flag.
func IsReady() bool { return ready.Load() }

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
// Only configured dependencies are probed; a service without Redis is still ready.
type Handler struct {
	Probes []Probe
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !IsReady() {
		common.JSON(w, http.StatusServiceUnavailable, readyResponse{Status: "shutting_down"})
		return
	}

	checks := h.run(r.Context())
	status := http.StatusOK
	resp := readyResponse{Status: "ok", Checks: checks}
	for _, result := range checks {
		if result != "ok" {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
			break
		}
	}
	common.JSON(w, status, resp)
}

func (h Handler) run(ctx context.Context) map[string]string {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.Probes))
	)
	probes := append([]Probe(nil), h.Probes...)
	sort.Slice(probes, func(i, j int) bool { return probes[i].Name < probes[j].Name })

	var g errgroup.Group
	for _, p := range probes {
		g.Go(func() error {
			timeout := p.Timeout
			if timeout <= 0 {
				timeout = 500 * time.Millisecond
			}
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result := "ok"
			if p.Check == nil {
				result = "not configured"
			} else if err := p.Check(pctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			results[p.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
