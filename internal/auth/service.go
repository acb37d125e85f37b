// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fertilityflow/portal/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
)

// UserInfo is the slice of a member record auth needs.
type UserInfo struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	TokenVersion int
}

// Accounts is implemented by the user service.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Lookup(ctx context.Context, email string) (*UserInfo, error)
	Register(ctx context.Context, email, passwordHash, name string) (*UserInfo, error)
	RevokeTokens(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, passwordHash string, revokeTokens bool) error
}

// Notifier receives account lifecycle events. Implementations must not
// block the request.
type Notifier interface {
	Welcome(email, name string)
	PasswordReset(email, name, token string)
}

// Client identifies where a session was opened from.
type Client struct {
	UserAgent string
	IP        string
}

type Service struct {
	sessions SessionStore
	resets   ResetTokenRepository
	tokens   *TokenIssuer
	accounts Accounts
	deny     denylist
	notifier Notifier
	logger   *slog.Logger
}

func NewService(
	sessions SessionStore,
	resets ResetTokenRepository,
	tokens *TokenIssuer,
	accounts Accounts,
	rdb *redis.Client,
	notifier Notifier,
) *Service {
	return &Service{
		sessions: sessions,
		resets:   resets,
		tokens:   tokens,
		accounts: accounts,
		deny:     denylist{rdb: rdb},
		notifier: notifier,
		logger:   slog.Default().With("component", "auth"),
	}
}

func (s *Service) Login(ctx context.Context, req LoginRequest, c Client) (*AuthResponse, error) {
	user, err := s.accounts.Lookup(ctx, req.Email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("login: %w", err)
	}

	var stored string
	if user != nil {
		stored = user.PasswordHash
	}
	ok, upgraded, err := core.CheckPassword(req.Password, stored)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if upgraded != "" {
		if err := s.accounts.SetPassword(ctx, user.ID, upgraded, false); err != nil {
			s.logger.Warn("password rehash not saved", "user_id", user.ID, "error", err)
		}
	}

	return s.openSession(ctx, user, c, "", "")
}

func (s *Service) Register(ctx context.Context, req RegisterRequest, c Client) (*AuthResponse, error) {
	hash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.accounts.Register(ctx, req.Email, hash, req.Name)
	if errors.Is(err, core.ErrDuplicateKey) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Welcome(user.Email, user.Name)
	}

	return s.openSession(ctx, user, c, "", "")
}

// Refresh exchanges a refresh token for a new pair. Presenting a token
// that was already exchanged revokes its whole family.
func (s *Service) Refresh(ctx context.Context, refreshToken string, c Client) (*AuthResponse, error) {
	sess, err := s.sessions.ByHash(ctx, core.HashToken(refreshToken))
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if err := sess.exchangeable(time.Now()); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			n, rerr := s.sessions.Revoke(ctx, ScopeFamily, sess.FamilyID)
			s.logger.Warn("refresh token reuse",
				"user_id", sess.UserID,
				"family_id", sess.FamilyID,
				"revoked", n,
				"revoke_error", rerr,
			)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	user, err := s.accounts.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return s.openSession(ctx, user, c, sess.FamilyID, sess.ID)
}

// openSession signs an access token and stores a new refresh link. When
// predecessor is set it is rotated out.
func (s *Service) openSession(
	ctx context.Context,
	user *UserInfo,
	c Client,
	familyID, predecessor string,
) (*AuthResponse, error) {
	access, err := s.tokens.SignAccess(user.ID, user.Role, user.TokenVersion)
	if err != nil {
		return nil, err
	}

	secret, err := s.tokens.newRefreshSecret(familyID)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: secret.hash,
		FamilyID:  secret.familyID,
		ExpiresAt: secret.expiresAt,
		UserAgent: c.UserAgent,
		IPAddress: c.IP,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	if predecessor != "" {
		if err := s.rotate(ctx, predecessor, sess); err != nil {
			return nil, err
		}
	}

	return &AuthResponse{
		User: userView(user),
		Tokens: TokenResponse{
			AccessToken:  access.Value,
			RefreshToken: secret.plain,
			TokenType:    "Bearer",
			ExpiresIn:    int(s.tokens.AccessTTL() / time.Second),
			ExpiresAt:    access.ExpiresAt,
		},
	}, nil
}

// rotate retires the predecessor in favour of next. If that fails the new
// link is revoked so the old token stays the only exchangeable one. Losing
// the conditional update means another exchange of the same token won, which
// is treated as reuse.
func (s *Service) rotate(ctx context.Context, predecessor string, next *Session) error {
	err := s.sessions.Rotate(ctx, predecessor, next.ID)
	if err == nil {
		return nil
	}

	if _, rerr := s.sessions.Revoke(ctx, ScopeSession, next.ID); rerr != nil {
		s.logger.Error("orphaned refresh session not revoked",
			"session_id", next.ID,
			"error", rerr,
		)
	}

	if errors.Is(err, core.ErrNotFound) {
		n, rerr := s.sessions.Revoke(ctx, ScopeFamily, next.FamilyID)
		s.logger.Warn("refresh token reuse",
			"user_id", next.UserID,
			"family_id", next.FamilyID,
			"revoked", n,
			"revoke_error", rerr,
		)
		return fmt.Errorf("refresh: %w", ErrTokenReuse)
	}
	return fmt.Errorf("refresh: %w", err)
}

func userView(u *UserInfo) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
