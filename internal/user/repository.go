// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fertilityflow/portal/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Patch(ctx context.Context, id string, name, role *string) (*User, error)
	SetPassword(ctx context.Context, id, hash string, revokeTokens bool) error
	BumpTokenVersion(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	Search(ctx context.Context, q MemberQuery) ([]User, int, error)
}

const userColumns = `id, email, password_hash, name, role, token_version,
	created_at, updated_at, deleted_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, u *User) error {
	err := r.db.GetContext(ctx, u, `
		INSERT INTO users (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role,
	)
	switch {
	case core.IsUniqueViolation(err):
		return fmt.Errorf("insert user: %w", core.ErrDuplicateKey)
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, "find user", "id = $1", id)
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "find user by email", "email = $1", email)
}

func (r *repository) findOne(
	ctx context.Context,
	op, predicate string,
	arg any,
) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users
		WHERE `+predicate+` AND deleted_at IS NULL`, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// Patch applies only the non-nil fields. A role change also bumps
// token_version since the role is baked into issued access tokens.
func (r *repository) Patch(
	ctx context.Context,
	id string,
	name, role *string,
) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		UPDATE users
		SET name = COALESCE($2, name),
		    role = COALESCE($3, role),
		    token_version = token_version +
		        CASE WHEN $3::text IS NOT NULL AND $3 <> role THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns,
		id, name, role,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patch user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("patch user: %w", err)
	}
	return &u, nil
}

func (r *repository) SetPassword(
	ctx context.Context,
	id, hash string,
	revokeTokens bool,
) error {
	bump := 0
	if revokeTokens {
		bump = 1
	}
	return r.execOne(ctx, "set password", `
		UPDATE users
		SET password_hash = $2,
		    token_version = token_version + $3,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, hash, bump)
}

func (r *repository) BumpTokenVersion(ctx context.Context, id string) error {
	return r.execOne(ctx, "bump token version", `
		UPDATE users
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
}

// Close soft-deletes the member and invalidates their access tokens.
// Purchases and progress rows are kept for accounting.
func (r *repository) Close(ctx context.Context, id string) error {
	return r.execOne(ctx, "close account", `
		UPDATE users
		SET deleted_at = NOW(),
		    token_version = token_version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

func (r *repository) Search(
	ctx context.Context,
	q MemberQuery,
) ([]User, int, error) {
	q = q.bounded()

	where, args := memberFilter(q)

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM users WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}
	if total == 0 {
		return []User{}, 0, nil
	}

	n := len(args)
	args = append(args, q.PageSize, q.offset())

	var users []User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users
		WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search members: %w", err)
	}
	return users, total, nil
}

func memberFilter(q MemberQuery) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any

	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
		p := "$" + strconv.Itoa(len(args))
		clauses = append(clauses, "(email LIKE "+p+" OR LOWER(name) LIKE "+p+")")
	}
	if q.Role != "" {
		args = append(args, q.Role)
		clauses = append(clauses, "role = $"+strconv.Itoa(len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
