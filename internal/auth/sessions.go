// AngelaMos | 2026
// sessions.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

const denyKeyPrefix = "auth:deny:"

// denylist holds logged-out access token ids until they would have expired
// anyway. A nil client disables it.
type denylist struct {
	rdb *redis.Client
}

func (d denylist) add(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if d.rdb == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denyKeyPrefix+jti, 1, ttl).Err()
}

func (d denylist) has(ctx context.Context, jti string) (bool, error) {
	if d.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, denyKeyPrefix+jti).Result()
	return n > 0, err
}

// VerifyAccessToken backs the authentication middleware. Beyond the
// signature it rejects denylisted tokens and tokens minted before the
// account's token version moved. A redis outage skips only the denylist.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	raw string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.tokens.ParseAccess(ctx, raw)
	if err != nil {
		return nil, err
	}

	switch denied, err := s.deny.has(ctx, claims.ID); {
	case err != nil:
		s.logger.Warn("token denylist unavailable", "error", err)
	case denied:
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	user, err := s.accounts.GetByID(ctx, claims.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.TokenVersion < user.TokenVersion {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	return claims, nil
}

// Logout ends the session behind refreshToken and denylists the access
// token in claims. Unknown refresh tokens are ignored.
func (s *Service) Logout(
	ctx context.Context,
	userID, refreshToken string,
	claims *middleware.AccessTokenClaims,
) error {
	if refreshToken != "" {
		sess, err := s.sessions.ByHash(ctx, core.HashToken(refreshToken))
		switch {
		case errors.Is(err, core.ErrNotFound):
		case err != nil:
			return fmt.Errorf("logout: %w", err)
		case sess.UserID != userID:
			return fmt.Errorf("logout: %w", core.ErrForbidden)
		default:
			if _, err := s.sessions.Revoke(ctx, ScopeSession, sess.ID); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
		}
	}

	if claims != nil {
		if err := s.deny.add(ctx, claims.ID, claims.ExpiresAt); err != nil {
			s.logger.Warn("access token not denylisted", "error", err)
		}
	}
	return nil
}

// LogoutAll revokes every refresh token and bumps the token version so
// outstanding access tokens fail verification too.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if _, err := s.sessions.Revoke(ctx, ScopeUser, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	if err := s.accounts.RevokeTokens(ctx, userID); err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	return nil
}

func (s *Service) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	active, err := s.sessions.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, len(active))
	for i := range active {
		out[i] = active[i].view()
	}
	return out, nil
}

func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.ByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}
	_, err = s.sessions.Revoke(ctx, ScopeFamily, sess.FamilyID)
	return err
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	ok, _, err := core.CheckPassword(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := core.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.accounts.SetPassword(ctx, userID, hash, true); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if _, err := s.sessions.Revoke(ctx, ScopeUser, userID); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := userView(user)
	return &view, nil
}
