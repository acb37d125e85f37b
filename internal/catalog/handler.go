// AngelaMos | 2026
// handler.go

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

// TierResolver reports a signed-in user's access tier for a product
// ("none", "partial" or "full").
type TierResolver interface {
	Tier(ctx context.Context, userID, productID string) (string, error)
}

type Handler struct {
	service *Service
	tiers   TierResolver
}

func NewHandler(service *Service, tiers TierResolver) *Handler {
	return &Handler{service: service, tiers: tiers}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	optionalAuth func(http.Handler) http.Handler,
) {
	r.Route("/programs", func(r chi.Router) {
		r.Use(optionalAuth)

		r.Get("/", h.ListPrograms)
		r.Get("/{slug}", h.GetProgram)
	})
}

func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListPrograms(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	resp := make([]ProgramResponse, 0, len(products))
	for i := range products {
		p := ToProgramResponse(&products[i])
		p.Access = h.access(r.Context(), userID, products[i].ID)
		resp = append(resp, p)
	}

	core.OK(w, resp)
}

func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	program, err := h.service.GetProgram(r.Context(), slug)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "program")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	resp := ToProgramDetailResponse(program)
	resp.Access = h.access(r.Context(), middleware.GetUserID(r.Context()), program.Product.ID)

	core.OK(w, resp)
}

// access is decoration only; a lookup failure leaves the field empty.
func (h *Handler) access(ctx context.Context, userID, productID string) string {
	if userID == "" || h.tiers == nil {
		return ""
	}

	tier, err := h.tiers.Tier(ctx, userID, productID)
	if err != nil {
		slog.Warn("access tier lookup failed",
			"user_id", userID,
			"product_id", productID,
			"error", err,
		)
		return ""
	}
	return tier
}
