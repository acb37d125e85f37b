// AngelaMos | 2026
// handler.go

package purchase

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

type Handler struct {
	service   *Service
	publicURL string
}

func NewHandler(service *Service, publicURL string) *Handler {
	return &Handler{service: service, publicURL: publicURL}
}

// RegisterRoutes mounts the claim endpoint behind optional auth because it
// is a browser form post: anonymous callers are sent to log in.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, optionalAuth func(http.Handler) http.Handler,
) {
	r.With(optionalAuth).Post("/products/{slug}/claim", h.Claim)

	r.Route("/purchases", func(r chi.Router) {
		r.Use(authenticator)
		r.Get("/me", h.ListMine)
	})
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	origin := core.RequestOrigin(r, h.publicURL)

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		target := origin + "/auth/login?redirect=" + url.QueryEscape("/programs/"+slug)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	_, err := h.service.ClaimFree(r.Context(), userID, slug)
	switch {
	case err == nil:
		http.Redirect(w, r, origin+"/dashboard/programs/"+slug, http.StatusSeeOther)
	case errors.Is(err, ErrNotClaimable):
		http.Redirect(w, r, origin+"/programs/"+slug, http.StatusSeeOther)
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "product")
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	purchases, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToPurchaseResponses(purchases))
}
