// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// AdminUpdateRequest patches a member; nil fields are left alone.
type AdminUpdateRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Role *string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

func (r AdminUpdateRequest) empty() bool {
	return r.Name == nil && r.Role == nil
}

type ProfileResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	FirstName   string    `json:"firstName"`
	Role        string    `json:"role"`
	MemberSince time.Time `json:"memberSince"`
}

type MemberResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MemberQuery filters the admin member list. Search matches email or name.
type MemberQuery struct {
	Search   string
	Role     string
	Page     int
	PageSize int
}

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func (q MemberQuery) bounded() MemberQuery {
	q.Page = max(q.Page, 1)
	switch {
	case q.PageSize < 1:
		q.PageSize = defaultPageSize
	case q.PageSize > maxPageSize:
		q.PageSize = maxPageSize
	}
	if !validRole(q.Role) {
		q.Role = ""
	}
	return q
}

func (q MemberQuery) offset() int {
	return (q.Page - 1) * q.PageSize
}

func toProfile(u *User) ProfileResponse {
	return ProfileResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		FirstName:   u.FirstName(),
		Role:        u.Role,
		MemberSince: u.CreatedAt,
	}
}

func toMembers(users []User) []MemberResponse {
	out := make([]MemberResponse, len(users))
	for i, u := range users {
		out[i] = MemberResponse{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      u.Role,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		}
	}
	return out
}
