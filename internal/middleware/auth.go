// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fertilityflow/portal/internal/core"
)

// AccessTokenCookie carries the access token for browser navigations
// (checkout return, free claims, downloads) that cannot set headers.
const AccessTokenCookie = "access_token"

const (
	identityKey contextKey = "identity"
	roleAdmin              = "admin"
)

type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*AccessTokenClaims, error)
}

type AccessTokenClaims struct {
	UserID       string
	Role         string
	TokenVersion int
	ID           string
	ExpiresAt    time.Time
}

// identity is what downstream handlers see of the caller. claims is nil when
// the identity was attached without a token.
type identity struct {
	userID string
	role   string
	claims *AccessTokenClaims
}

// Authenticator rejects the request unless it carries a token the verifier
// accepts.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractToken(r)
			if raw == "" {
				core.JSONError(w, core.UnauthorizedError("missing authorization token"))
				return
			}

			claims, err := verifier.VerifyAccessToken(r.Context(), raw)
			if err != nil {
				core.JSONError(w, tokenError(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the caller when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := ExtractToken(r); raw != "" {
				if claims, err := verifier.VerifyAccessToken(r.Context(), raw); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(identityKey).(identity)
		switch {
		case !ok || id.userID == "":
			core.JSONError(w, core.UnauthorizedError("authentication required"))
		case id.role != roleAdmin:
			core.JSONError(w, core.ForbiddenError("admin access required"))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ExtractToken prefers the Authorization bearer header and falls back to
// the access token cookie. A non-bearer Authorization header yields "".
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}

	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func tokenError(err error) error {
	var appErr *core.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, core.ErrTokenExpired):
		return core.TokenExpiredError()
	case errors.Is(err, core.ErrTokenRevoked):
		return core.TokenRevokedError()
	default:
		return core.TokenInvalidError()
	}
}

func withClaims(ctx context.Context, c *AccessTokenClaims) context.Context {
	return context.WithValue(ctx, identityKey, identity{
		userID: c.UserID,
		role:   c.Role,
		claims: c,
	})
}

// WithUser attaches an authenticated identity to ctx without a token.
func WithUser(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, identityKey, identity{userID: userID, role: role})
}

func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(identity)
	return id.userID
}

func GetRole(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(identity)
	return id.role
}

func GetClaims(ctx context.Context) *AccessTokenClaims {
	id, _ := ctx.Value(identityKey).(identity)
	return id.claims
}
