// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

const (
	maxAuthBody = 8 << 10

	forgotPasswordMessage = "If an account exists with that email, " +
		"you will receive a password reset link shortly."
	resetDoneMessage = "Password has been reset. Please log in."
)

type Handler struct {
	service      *Service
	validator    *validator.Validate
	cookieSecure bool
}

func NewHandler(service *Service, cookieSecure bool) *Handler {
	return &Handler{
		service:      service,
		validator:    validator.New(validator.WithRequiredStructEnabled()),
		cookieSecure: cookieSecure,
	}
}

// RegisterRoutes mounts /auth. Credential and password-reset forms sit
// behind formLimit.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, formLimit func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/refresh", h.Refresh)

		r.With(formLimit).Group(func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)
		})

		r.With(authenticator).Group(func(r chi.Router) {
			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
			r.Post("/logout-all", h.LogoutAll)
			r.Get("/sessions", h.Sessions)
			r.Delete("/sessions/{sessionID}", h.RevokeSession)
			r.Post("/change-password", h.ChangePassword)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.bind(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req, clientOf(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.setAccessCookie(w, resp.Tokens)
	core.OK(w, resp)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req, clientOf(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.setAccessCookie(w, resp.Tokens)
	core.Created(w, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.bind(w, r, &req) {
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken, clientOf(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.setAccessCookie(w, resp.Tokens)
	core.OK(w, resp)
}

// Logout accepts an empty body; cookie-only clients have no refresh token
// to present.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if r.ContentLength != 0 && !h.bind(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.service.Logout(ctx, middleware.GetUserID(ctx), req.RefreshToken, middleware.GetClaims(ctx)); err != nil {
		writeAuthError(w, err)
		return
	}
	h.clearAccessCookie(w)
	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LogoutAll(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeAuthError(w, err)
		return
	}
	h.clearAccessCookie(w)
	core.NoContent(w)
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	core.OK(w, map[string]any{"sessions": sessions})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	err := h.service.RevokeSession(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "sessionID"),
	)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	core.NoContent(w)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	err := h.service.ChangePassword(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.CurrentPassword,
		req.NewPassword,
	)
	if errors.Is(err, ErrInvalidCredentials) {
		core.JSONError(w, core.UnauthorizedError("current password is incorrect"))
		return
	}
	if err != nil {
		writeAuthError(w, err)
		return
	}
	h.clearAccessCookie(w)
	core.NoContent(w)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.service.Me(r.Context(), middleware.GetUserID(r.Context()))
	if errors.Is(err, core.ErrNotFound) {
		core.NotFound(w, "user")
		return
	}
	if err != nil {
		writeAuthError(w, err)
		return
	}
	core.OK(w, me)
}

// ForgotPassword answers identically whether or not the account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		core.InternalServerError(w, err)
		return
	}
	core.OK(w, MessageResponse{Message: forgotPasswordMessage})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case err == nil:
		core.OK(w, MessageResponse{Message: resetDoneMessage})
	case errors.Is(err, core.ErrTokenExpired), errors.Is(err, core.ErrTokenInvalid):
		core.BadRequest(w, "reset link is invalid or has expired")
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

var tokenReuseError = core.NewAppError(
	core.ErrTokenRevoked,
	"security alert: token reuse detected, all sessions revoked",
	http.StatusUnauthorized,
	"TOKEN_REUSE_DETECTED",
)

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		core.JSONError(w, core.UnauthorizedError("invalid email or password"))
	case errors.Is(err, ErrEmailExists):
		core.JSONError(w, core.DuplicateError("email"))
	case errors.Is(err, ErrTokenReuse):
		core.JSONError(w, tokenReuseError)
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.TokenExpiredError())
	case errors.Is(err, core.ErrTokenRevoked):
		core.JSONError(w, core.TokenRevokedError())
	case errors.Is(err, core.ErrTokenInvalid):
		core.JSONError(w, core.TokenInvalidError())
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not your session")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "session")
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, t TokenResponse) {
	h.writeCookie(w, t.AccessToken, t.ExpiresIn)
}

func (h *Handler) clearAccessCookie(w http.ResponseWriter) {
	h.writeCookie(w, "", -1)
}

func (h *Handler) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientOf relies on chi's RealIP middleware having already rewritten
// RemoteAddr from the proxy headers.
func clientOf(r *http.Request) Client {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return Client{UserAgent: r.UserAgent(), IP: ip}
}
