// AngelaMos | 2026
// handler.go

package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/metrics"
	"github.com/fertilityflow/portal/internal/payment"
)

const (
	maxBodyBytes    = 64 << 10
	signatureHeader = "Stripe-Signature"
)

type Verifier interface {
	ConstructEvent(payload []byte, sigHeader string) (*payment.Event, error)
}

type Handler struct {
	verifier   Verifier
	reconciler *Reconciler
}

func NewHandler(verifier Verifier, reconciler *Reconciler) *Handler {
	return &Handler{verifier: verifier, reconciler: reconciler}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Stripe)
}

type errorBody struct {
	Error string `json:"error"`
}

type receivedBody struct {
	Received bool `json:"received"`
}

// Stripe verifies the raw body before decoding anything. Nothing is
// written to the store unless the signature checks out.
func (h *Handler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		core.JSON(w, http.StatusBadRequest, errorBody{Error: "Invalid payload"})
		return
	}

	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		core.JSON(w, http.StatusBadRequest, errorBody{Error: "Missing stripe-signature header"})
		return
	}

	evt, err := h.verifier.ConstructEvent(payload, sig)
	if err != nil {
		slog.Warn("webhook signature rejected", "error", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		core.JSON(w, http.StatusBadRequest, errorBody{Error: "Invalid signature"})
		return
	}

	if err := h.reconciler.Handle(r.Context(), evt); err != nil &&
		!errors.Is(err, ErrMalformedEvent) {
		core.JSON(w, http.StatusInternalServerError, errorBody{Error: "Webhook handler failed"})
		return
	}

	core.JSON(w, http.StatusOK, receivedBody{Received: true})
}
