// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fertilityflow/portal/internal/auth"
	"github.com/fertilityflow/portal/internal/core"
)

// Service owns member records. It also backs auth.Accounts so the auth
// package never touches the users table directly.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var _ auth.Accounts = (*Service)(nil)

func (s *Service) GetByID(ctx context.Context, id string) (*auth.UserInfo, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return accountOf(u), nil
}

func (s *Service) Lookup(ctx context.Context, email string) (*auth.UserInfo, error) {
	u, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return accountOf(u), nil
}

func (s *Service) Register(
	ctx context.Context,
	email, passwordHash, name string,
) (*auth.UserInfo, error) {
	u := &User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Name:         name,
		Role:         RoleUser,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return nil, err
	}
	return accountOf(u), nil
}

func (s *Service) RevokeTokens(ctx context.Context, id string) error {
	return s.repo.BumpTokenVersion(ctx, id)
}

func (s *Service) SetPassword(
	ctx context.Context,
	id, passwordHash string,
	revokeTokens bool,
) error {
	return s.repo.SetPassword(ctx, id, passwordHash, revokeTokens)
}

func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("profile: %w", core.ErrUnauthorized)
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Rename(ctx context.Context, id, name string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("rename: %w", core.ErrUnauthorized)
	}
	return s.repo.Patch(ctx, id, &name, nil)
}

// CloseAccount soft-deletes the caller. Admins must be demoted by another
// admin first.
func (s *Service) CloseAccount(ctx context.Context, id string) error {
	u, err := s.Profile(ctx, id)
	if err != nil {
		return err
	}
	if u.IsAdmin() {
		return fmt.Errorf("close account: admin must be demoted first: %w", core.ErrForbidden)
	}
	return s.repo.Close(ctx, id)
}

func (s *Service) Members(ctx context.Context, q MemberQuery) ([]User, int, error) {
	return s.repo.Search(ctx, q)
}

func (s *Service) Member(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) UpdateMember(
	ctx context.Context,
	actorID, id string,
	req AdminUpdateRequest,
) (*User, error) {
	if req.empty() {
		return nil, fmt.Errorf("update member: nothing to change: %w", core.ErrInvalidInput)
	}
	if req.Role != nil && !validRole(*req.Role) {
		return nil, fmt.Errorf("update member: role %q: %w", *req.Role, core.ErrInvalidInput)
	}
	if req.Role != nil && *req.Role != RoleAdmin && actorID == id {
		return nil, fmt.Errorf("update member: cannot demote yourself: %w", core.ErrForbidden)
	}
	return s.repo.Patch(ctx, id, req.Name, req.Role)
}

// RemoveMember lets an admin close someone else's account. Other admins are
// protected.
func (s *Service) RemoveMember(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return s.CloseAccount(ctx, id)
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target.IsAdmin() {
		return fmt.Errorf("remove member: target is admin: %w", core.ErrForbidden)
	}
	return s.repo.Close(ctx, id)
}

func accountOf(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}
}
