// AngelaMos | 2026
// reset.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fertilityflow/portal/internal/core"
)

const resetTokenTTL = time.Hour

type PasswordResetToken struct {
	Email     string    `db:"email"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type ResetTokenRepository interface {
	// Replace deletes any earlier token for the email and stores the new one.
	Replace(ctx context.Context, token *PasswordResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)
	DeleteForEmail(ctx context.Context, email string) error
}

type resetRepository struct {
	db *sqlx.DB
}

func NewResetTokenRepository(db *sqlx.DB) ResetTokenRepository {
	return &resetRepository{db: db}
}

func (r *resetRepository) Replace(
	ctx context.Context,
	token *PasswordResetToken,
) error {
	return core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM password_reset_tokens WHERE email = $1`,
			token.Email,
		); err != nil {
			return fmt.Errorf("delete old reset tokens: %w", err)
		}

		query := `
			INSERT INTO password_reset_tokens (email, token_hash, expires_at)
			VALUES ($1, $2, $3)
			RETURNING created_at`

		if err := tx.GetContext(ctx, &token.CreatedAt, query,
			token.Email,
			token.TokenHash,
			token.ExpiresAt,
		); err != nil {
			return fmt.Errorf("insert reset token: %w", err)
		}

		return nil
	})
}

func (r *resetRepository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*PasswordResetToken, error) {
	query := `
		SELECT email, token_hash, expires_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1`

	var token PasswordResetToken
	err := r.db.GetContext(ctx, &token, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find reset token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}

	return &token, nil
}

func (r *resetRepository) DeleteForEmail(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE email = $1`,
		email,
	); err != nil {
		return fmt.Errorf("delete reset tokens: %w", err)
	}
	return nil
}

// ForgotPassword issues a one-hour reset token when the email belongs to
// an account. Unknown emails return nil so callers cannot probe accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.accounts.Lookup(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}

	token, err := core.GenerateResetToken()
	if err != nil {
		return err
	}

	err = s.resets.Replace(ctx, &PasswordResetToken{
		Email:     user.Email,
		TokenHash: core.HashToken(token),
		ExpiresAt: time.Now().Add(resetTokenTTL),
	})
	if err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}

	if s.notifier != nil {
		s.notifier.PasswordReset(user.Email, user.Name, token)
	}
	return nil
}

// ResetPassword consumes a single-use reset token, sets the new password
// and ends every session the account had.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	stored, err := s.resets.FindByHash(ctx, core.HashToken(token))
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("reset password: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	if !time.Now().Before(stored.ExpiresAt) {
		if derr := s.resets.DeleteForEmail(ctx, stored.Email); derr != nil {
			s.logger.Warn("expired reset token not removed", "error", derr)
		}
		return fmt.Errorf("reset password: %w", core.ErrTokenExpired)
	}

	user, err := s.accounts.Lookup(ctx, stored.Email)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("reset password: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	hash, err := core.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.SetPassword(ctx, user.ID, hash, true); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.resets.DeleteForEmail(ctx, stored.Email); err != nil {
		s.logger.Warn("reset token cleanup failed", "error", err)
	}

	if _, err := s.sessions.Revoke(ctx, ScopeUser, user.ID); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}
