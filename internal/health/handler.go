// AngelaMos | 2026
// handler.go

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const probeBudget = 5 * time.Second

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
	statusDraining    = "shutting_down"
)

type Checker interface {
	Ping(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependency is one readiness probe. A failing non-critical dependency
// reports degraded but keeps the instance in rotation.
type Dependency struct {
	Name     string
	Checker  Checker
	Critical bool
}

type Handler struct {
	deps     []Dependency
	draining atomic.Bool
}

func NewHandler(deps ...Dependency) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/livez", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// SetShutdown satisfies server.ShutdownAware.
func (h *Handler) SetShutdown(shutdown bool) {
	h.draining.Store(shutdown)
}

func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	if h.draining.Load() {
		writeProbe(w, http.StatusServiceUnavailable, StatusResponse{Status: statusDraining})
		return
	}
	writeProbe(w, http.StatusOK, StatusResponse{Status: statusOK})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeProbe(w, http.StatusServiceUnavailable, StatusResponse{Status: statusDraining})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeBudget)
	defer cancel()

	checks := h.probeAll(ctx)
	status := verdict(checks)

	code := http.StatusOK
	if status == statusUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeProbe(w, code, ReadinessResponse{Status: status, Checks: checks})
}

// probeAll pings every dependency concurrently. Probe failures are recorded
// in the result, never returned, so one slow dependency cannot cancel the rest.
func (h *Handler) probeAll(ctx context.Context) []HealthCheck {
	checks := make([]HealthCheck, len(h.deps))

	var g errgroup.Group
	for i, dep := range h.deps {
		g.Go(func() error {
			checks[i] = probe(ctx, dep)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never fail the group

	return checks
}

func probe(ctx context.Context, dep Dependency) HealthCheck {
	hc := HealthCheck{Name: dep.Name, Critical: dep.Critical}
	if dep.Checker == nil {
		hc.Message = "no checker configured"
		return hc
	}

	start := time.Now()
	err := dep.Checker.Ping(ctx)
	hc.Latency = time.Since(start).Round(time.Microsecond).String()
	hc.Healthy = err == nil
	if err != nil {
		hc.Message = "ping failed"
	}
	return hc
}

func verdict(checks []HealthCheck) string {
	status := statusOK
	for _, c := range checks {
		switch {
		case c.Healthy:
		case c.Critical:
			return statusUnavailable
		default:
			status = statusDegraded
		}
	}
	return status
}

func writeProbe(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // best-effort response
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ReadinessResponse struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
}

type HealthCheck struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
	Message  string `json:"message,omitempty"`
}
