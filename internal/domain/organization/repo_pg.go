package organization

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/db"
)

type organizationRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &organizationRepoPG{pool: pool}
}

const (
	organizationFrom = `organizations o JOIN users u ON u.id = o.user_id`
	organizationCols = `o.id, o.user_id, u.email, o.name, o.acronym, o.address, o.phone_number, o.logo_key,
	o.created_at, o.updated_at`
)

func (r *organizationRepoPG) Create(ctx context.Context, o *Organization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO organizations (id, user_id, name, acronym, address, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Name, o.Acronym, o.Address, o.PhoneNumber,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		if constraint == "organizations_acronym_key" {
			return apperr.ErrAcronymTaken.Wrap(err)
		}
		return apperr.Conflict("organization_exists", "organization already exists").Wrap(fmt.Errorf("%s: %w", constraint, err))
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (r *organizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrganization(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+organizationCols+` FROM `+organizationFrom+` WHERE o.id = $1`, id))
}

func (r *organizationRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Organization, error) {
	return scanOrganization(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+organizationCols+` FROM `+organizationFrom+` WHERE o.user_id = $1`, userID))
}

func (r *organizationRepoPG) AcronymExists(ctx context.Context, acronym string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM organizations WHERE acronym = upper($1))`, acronym).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check acronym: %w", err)
	}
	return exists, nil
}

func (r *organizationRepoPG) Update(ctx context.Context, o *Organization) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE organizations SET name = $2, address = $3, phone_number = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Name, o.Address, o.PhoneNumber,
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("organization")
	}
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return nil
}

func (r *organizationRepoPG) SetLogo(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE organizations SET logo_key = $2, updated_at = now() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("set organization logo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("organization")
	}
	return nil
}

func scanOrganization(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.UserID, &o.Email, &o.Name, &o.Acronym, &o.Address, &o.PhoneNumber, &o.LogoKey,
		&o.CreatedAt, &o.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	return &o, nil
}
