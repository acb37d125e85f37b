// AngelaMos | 2026
// entity.go

package auth

import (
	"time"

	"github.com/fertilityflow/portal/internal/core"
)

// Session is one link in a refresh-token family. Each refresh marks the
// presented link used and appends a new one; a used link coming back means
// the family leaked.
type Session struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	IsUsed       bool       `db:"is_used"`
	UsedAt       *time.Time `db:"used_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
	UserAgent    string     `db:"user_agent"`
	IPAddress    string     `db:"ip_address"`
}

// exchangeable returns nil when the refresh token may be swapped for a new
// pair, else the reason it may not.
func (s *Session) exchangeable(now time.Time) error {
	switch {
	case s.IsUsed:
		return ErrTokenReuse
	case s.RevokedAt != nil:
		return core.ErrTokenRevoked
	case !now.Before(s.ExpiresAt):
		return core.ErrTokenExpired
	}
	return nil
}

func (s *Session) view() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
