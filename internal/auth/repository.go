// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fertilityflow/portal/internal/core"
)

// RevokeScope picks which sessions a revoke touches.
type RevokeScope string

const (
	ScopeSession RevokeScope = "id"
	ScopeFamily  RevokeScope = "family_id"
	ScopeUser    RevokeScope = "user_id"
)

type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	ByHash(ctx context.Context, tokenHash string) (*Session, error)
	ByID(ctx context.Context, id string) (*Session, error)
	// Rotate marks id used and links it to its successor. It fails with
	// ErrNotFound when id was already used.
	Rotate(ctx context.Context, id, successorID string) error
	Revoke(ctx context.Context, scope RevokeScope, key string) (int64, error)
	Active(ctx context.Context, userID string) ([]Session, error)
	// Prune deletes sessions that expired before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

const sessionColumns = `id, user_id, token_hash, family_id, expires_at,
	created_at, is_used, used_at, revoked_at, replaced_by_id,
	user_agent, ip_address`

type sessionStore struct {
	db core.DBTX
}

func NewSessionStore(db core.DBTX) SessionStore {
	return &sessionStore{db: db}
}

func (st *sessionStore) Save(ctx context.Context, s *Session) error {
	err := st.db.GetContext(ctx, &s.CreatedAt, `
		INSERT INTO refresh_tokens
			(id, user_id, token_hash, family_id, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID, s.UserID, s.TokenHash, s.FamilyID, s.ExpiresAt, s.UserAgent, s.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (st *sessionStore) ByHash(ctx context.Context, tokenHash string) (*Session, error) {
	return st.one(ctx, "token_hash", tokenHash)
}

func (st *sessionStore) ByID(ctx context.Context, id string) (*Session, error) {
	return st.one(ctx, "id", id)
}

func (st *sessionStore) one(ctx context.Context, column, value string) (*Session, error) {
	var s Session
	err := st.db.GetContext(ctx, &s,
		`SELECT `+sessionColumns+` FROM refresh_tokens WHERE `+column+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session by %s: %w", column, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session by %s: %w", column, err)
	}
	return &s, nil
}

func (st *sessionStore) Rotate(ctx context.Context, id, successorID string) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET is_used = true, used_at = NOW(), replaced_by_id = $2
		WHERE id = $1 AND NOT is_used`, id, successorID)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	} else if n == 0 {
		return fmt.Errorf("rotate session: %w", core.ErrNotFound)
	}
	return nil
}

func (st *sessionStore) Revoke(
	ctx context.Context,
	scope RevokeScope,
	key string,
) (int64, error) {
	switch scope {
	case ScopeSession, ScopeFamily, ScopeUser:
	default:
		return 0, fmt.Errorf("revoke sessions: scope %q: %w", scope, core.ErrInvalidInput)
	}

	res, err := st.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW()
		WHERE `+string(scope)+` = $1 AND revoked_at IS NULL`, key)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by %s: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by %s: %w", scope, err)
	}
	return n, nil
}

func (st *sessionStore) Active(ctx context.Context, userID string) ([]Session, error) {
	sessions := []Session{}
	err := st.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		  AND revoked_at IS NULL
		  AND NOT is_used
		  AND expires_at > NOW()
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}
	return sessions, nil
}

func (st *sessionStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := st.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return n, nil
}
