package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

const userColumns = `id, email, password_hash, role, is_active, is_invited, is_verified,
	is_staff, is_superuser, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, role, is_active, is_invited, is_verified, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, nullableRole(u.Role), u.IsActive, u.IsInvited, u.IsVerified, u.IsStaff, u.IsSuperuser,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return apperr.ErrEmailTaken.Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, NormalizeEmail(email)))
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *userRepoPG) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) Activate(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET is_active = TRUE, is_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// ResolveActor loads the user with whichever profile row references it.
func (r *userRepoPG) ResolveActor(ctx context.Context, id uuid.UUID) (auth.Actor, error) {
	var (
		role   *string
		active bool
		p      Profiles
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT u.role, u.is_active, o.id, c.id, c.organization_id, p.id, p.organization_id
		FROM users u
		LEFT JOIN organizations o ON o.user_id = u.id
		LEFT JOIN caregivers c ON c.user_id = u.id
		LEFT JOIN patients p ON p.user_id = u.id
		WHERE u.id = $1`, id,
	).Scan(&role, &active, &p.OrganizationID, &p.CaregiverID, &p.CaregiverOrgID, &p.PatientID, &p.PatientOrgID)
	if db.IsNoRows(err) {
		return nil, apperr.Unauthenticated("unauthenticated", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	return BuildActor(id, roleFrom(role), active, p)
}

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role *string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.IsInvited, &u.IsVerified,
		&u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = roleFrom(role)
	return &u, nil
}

// Platform staff accounts store a NULL role.
func nullableRole(r auth.Role) *string {
	if r == auth.RoleNone {
		return nil
	}
	s := string(r)
	return &s
}

func roleFrom(s *string) auth.Role {
	if s == nil {
		return auth.RoleNone
	}
	return auth.Role(*s)
}
