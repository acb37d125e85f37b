// AngelaMos | 2026
// handler.go

package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

const (
	checkoutRoute = "/checkout"
	successRoute  = "/success"
)

type Request struct {
	ProductID string `json:"productId"`
	PriceType string `json:"priceType"`
}

type Response struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"redirectUrl"`
}

type Handler struct {
	service   *Service
	publicURL string
}

func NewHandler(service *Service, publicURL string) *Handler {
	return &Handler{service: service, publicURL: publicURL}
}

// RegisterRoutes mounts /checkout. The success callback is a browser
// redirect, so it authenticates from the cookie and redirects on failure
// instead of answering JSON.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, optionalAuth func(http.Handler) http.Handler,
) {
	r.Route(checkoutRoute, func(r chi.Router) {
		r.With(authenticator).Post("/", h.Create)
		r.With(optionalAuth).Get(successRoute, h.Success)
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	result, err := h.service.Initiate(r.Context(), Input{
		UserID:    middleware.GetUserID(r.Context()),
		ProductID: req.ProductID,
		PriceType: req.PriceType,
		Origin:    core.RequestOrigin(r, h.publicURL),
	})
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, Response{SessionID: result.SessionID, URL: result.URL})
}

func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	origin := core.RequestOrigin(r, h.publicURL)

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Redirect(w, r, origin+"/auth/login?error=unauthorized", http.StatusSeeOther)
		return
	}

	q := h.service.VerifySuccess(r.Context(), userID, r.URL.Query().Get("session_id"))
	http.Redirect(w, r, origin+"/dashboard?"+q.Encode(), http.StatusSeeOther)
}
