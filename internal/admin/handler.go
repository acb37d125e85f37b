// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/purchase"
	"github.com/fertilityflow/portal/internal/webhook"
)

type PurchaseService interface {
	CountByStatus(ctx context.Context) (map[purchase.Status]int, error)
	ListForUser(ctx context.Context, userID string) ([]purchase.UserPurchase, error)
}

type PlanRechecker interface {
	RecheckPlan(ctx context.Context, subscriptionID string) (*webhook.PlanState, error)
}

// Backend is one infrastructure dependency shown on the ops dashboard.
// Stats may be nil when the backend exposes no pool counters.
type Backend struct {
	Name  string
	Ping  func(ctx context.Context) error
	Stats func() any
}

type HandlerConfig struct {
	Backends  []Backend
	Purchases PurchaseService
	Plans     PlanRechecker
}

type Handler struct {
	backends  []Backend
	purchases PurchaseService
	plans     PlanRechecker
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		backends:  cfg.Backends,
		purchases: cfg.Purchases,
		plans:     cfg.Plans,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.With(authenticator, adminOnly).Route("/admin", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/purchases", h.ListPurchases)
		r.Post("/plans/{subscriptionID}/recheck", h.RecheckPlan)
	})
}

// Stats reports backend health and pool usage, process runtime figures, and
// purchase totals by status.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatsResponse{
		Backends: h.inspect(ctx),
		Runtime:  readRuntime(),
	}

	if h.purchases != nil {
		counts, err := h.purchases.CountByStatus(ctx)
		if err != nil {
			slog.WarnContext(ctx, "purchase counts unavailable", "error", err)
		} else {
			resp.Purchases = make(map[string]int, len(counts))
			for status, n := range counts {
				resp.Purchases[string(status)] = n
			}
		}
	}

	core.OK(w, resp)
}

func (h *Handler) inspect(ctx context.Context) []BackendStatus {
	out := make([]BackendStatus, len(h.backends))

	var g errgroup.Group
	for i, b := range h.backends {
		g.Go(func() error {
			st := BackendStatus{Name: b.Name, Healthy: true}
			if b.Ping != nil {
				st.Healthy = b.Ping(ctx) == nil
			}
			if b.Stats != nil {
				st.Pool = b.Stats()
			}
			out[i] = st
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // inspection never fails the group

	return out
}

// ListPurchases is the support lookup for one customer's purchase history.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		core.BadRequest(w, "user_id is required")
		return
	}

	rows, err := h.purchases.ListForUser(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}
	core.OK(w, purchase.ToPurchaseResponses(rows))
}

// RecheckPlan re-derives plan completion from Stripe for a subscription
// whose invoice webhooks may have been missed.
func (h *Handler) RecheckPlan(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionID")

	state, err := h.plans.RecheckPlan(r.Context(), subscriptionID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "plan purchase")
		return
	case err != nil:
		core.JSONError(w, core.UpstreamError(err))
		return
	}

	slog.InfoContext(r.Context(), "plan rechecked",
		"subscription_id", subscriptionID,
		"paid_invoices", state.PaidInvoices,
		"complete", state.Complete,
		"changed", state.Changed,
	)
	core.OK(w, state)
}

// SQLPool adapts database/sql pool counters for the dashboard.
func SQLPool(stats func() sql.DBStats) func() any {
	return func() any {
		s := stats()
		return map[string]any{
			"maxOpen":      s.MaxOpenConnections,
			"open":         s.OpenConnections,
			"inUse":        s.InUse,
			"idle":         s.Idle,
			"waitCount":    s.WaitCount,
			"waitDuration": s.WaitDuration.String(),
		}
	}
}

// RedisPool adapts go-redis pool counters for the dashboard.
func RedisPool(stats func() *redis.PoolStats) func() any {
	return func() any {
		s := stats()
		return map[string]any{
			"hits":       s.Hits,
			"misses":     s.Misses,
			"timeouts":   s.Timeouts,
			"totalConns": s.TotalConns,
			"idleConns":  s.IdleConns,
		}
	}
}

func readRuntime() RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeStats{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		SysBytes:   mem.Sys,
		GCCycles:   mem.NumGC,
	}
}

type StatsResponse struct {
	Backends  []BackendStatus `json:"backends"`
	Runtime   RuntimeStats    `json:"runtime"`
	Purchases map[string]int  `json:"purchases,omitempty"`
}

type BackendStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Pool    any    `json:"pool,omitempty"`
}

type RuntimeStats struct {
	GoVersion  string `json:"goVersion"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heapBytes"`
	SysBytes   uint64 `json:"sysBytes"`
	GCCycles   uint32 `json:"gcCycles"`
}
