// AngelaMos | 2026
// handler.go

package marketing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/notify"
)

const maxFormBody = 16 << 10

type Subscriber interface {
	SubscribeNewsletter(ctx context.Context, email string) (bool, error)
	BookSession(ctx context.Context, b notify.Booking) error
}

type NewsletterRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type BookSessionRequest struct {
	FirstName       string   `json:"firstName"       validate:"required,max=100"`
	LastName        string   `json:"lastName"        validate:"required,max=100"`
	Email           string   `json:"email"           validate:"required,email,max=254"`
	Phone           string   `json:"phone"           validate:"required,max=40"`
	Message         string   `json:"message"         validate:"required,max=5000"`
	Interests       []string `json:"interests"       validate:"max=20,dive,max=100"`
	NewsletterOptIn bool     `json:"newsletterOptIn"`
}

type FormResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler serves the public marketing-site forms. Both endpoints are
// unauthenticated and sit behind the stricter form rate limit.
type Handler struct {
	subscriber Subscriber
	validator  *validator.Validate
}

func NewHandler(subscriber Subscriber) *Handler {
	return &Handler{
		subscriber: subscriber,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router, formLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(formLimit)

		r.Post("/newsletter/subscribe", h.Subscribe)
		r.Post("/book-session", h.BookSession)
	})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req NewsletterRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	already, err := h.subscriber.SubscribeNewsletter(r.Context(), email)
	if err != nil {
		writeFormError(w, err, "newsletter subscribe failed")
		return
	}

	msg := "Successfully subscribed to newsletter"
	if already {
		msg = "You are already subscribed to our newsletter!"
	}
	core.JSON(w, http.StatusOK, FormResponse{Success: true, Message: msg})
}

func (h *Handler) BookSession(w http.ResponseWriter, r *http.Request) {
	var req BookSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.subscriber.BookSession(r.Context(), notify.Booking{
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:           strings.TrimSpace(req.Phone),
		Message:         strings.TrimSpace(req.Message),
		Interests:       req.Interests,
		NewsletterOptIn: req.NewsletterOptIn,
	})
	if err != nil {
		writeFormError(w, err, "book session failed")
		return
	}

	core.JSON(w, http.StatusOK, FormResponse{
		Success: true,
		Message: "Thank you! We'll be in touch soon to schedule your session.",
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func writeFormError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, notify.ErrNotConfigured) {
		core.JSONError(w, core.ConfigurationError(err))
		return
	}
	slog.Error(msg, "error", err)
	core.JSONError(w, core.UpstreamError(err))
}
