// AngelaMos | 2026
// handler.go

package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

const maxBodyBytes = 4 << 10

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Route("/users/me", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/", h.UpdateProfile)
		r.Delete("/", h.CloseAccount)
	})
}

func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.With(authenticator, adminOnly).Route("/admin/users", func(r chi.Router) {
		r.Get("/", h.ListMembers)
		r.Get("/{userID}", h.GetMember)
		r.Patch("/{userID}", h.UpdateMember)
		r.Delete("/{userID}", h.RemoveMember)
	})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	core.OK(w, toProfile(u))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.service.Rename(r.Context(), middleware.GetUserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	core.OK(w, toProfile(u))
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseAccount(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	core.NoContent(w)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := MemberQuery{
		Search:   qs.Get("search"),
		Role:     qs.Get("role"),
		Page:     atoiOr(qs.Get("page"), 1),
		PageSize: atoiOr(qs.Get("page_size"), defaultPageSize),
	}.bounded()

	users, total, err := h.service.Members(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	core.Paginated(w, toMembers(users), q.Page, q.PageSize, total)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Member(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	core.OK(w, toMembers([]User{*u})[0])
}

func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req AdminUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.service.UpdateMember(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "userID"),
		req,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	core.OK(w, toMembers([]User{*u})[0])
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveMember(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "userID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	core.NoContent(w)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		core.Unauthorized(w, "authentication required")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not allowed")
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, "invalid update")
	default:
		core.InternalServerError(w, err)
	}
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}
