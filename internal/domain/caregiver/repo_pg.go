package caregiver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/db"
)

type caregiverRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &caregiverRepoPG{pool: pool}
}

const (
	caregiverFrom = `caregivers c JOIN users u ON u.id = c.user_id`
	caregiverCols = `c.id, c.user_id, c.organization_id, u.email, c.first_name, c.last_name, c.caregiver_type,
	c.staff_number, c.date_of_birth, c.gender, c.marital_status, c.phone_number, c.address,
	c.profile_picture_key, u.is_active, u.is_verified, c.created_at, c.updated_at`
)

func (r *caregiverRepoPG) Create(ctx context.Context, cg *Caregiver) error {
	if cg.ID == uuid.Nil {
		cg.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO caregivers (id, user_id, organization_id, first_name, last_name, caregiver_type, staff_number,
			date_of_birth, gender, marital_status, phone_number, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		cg.ID, cg.UserID, cg.OrganizationID, cg.FirstName, cg.LastName, cg.CaregiverType, cg.StaffNumber,
		cg.DateOfBirth, cg.Gender, cg.MaritalStatus, cg.PhoneNumber, cg.Address,
	).Scan(&cg.CreatedAt, &cg.UpdatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		return apperr.Conflict("caregiver_exists", "caregiver already exists").Wrap(fmt.Errorf("%s: %w", constraint, err))
	}
	if err != nil {
		return fmt.Errorf("insert caregiver: %w", err)
	}
	return nil
}

func (r *caregiverRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Caregiver, error) {
	return scanCaregiver(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+caregiverCols+` FROM `+caregiverFrom+` WHERE c.id = $1 AND c.organization_id = $2`, id, orgID))
}

func (r *caregiverRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Caregiver, error) {
	return scanCaregiver(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+caregiverCols+` FROM `+caregiverFrom+` WHERE c.user_id = $1`, userID))
}

func (r *caregiverRepoPG) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]*Caregiver, int, error) {
	qb := db.NewSearchQuery(caregiverFrom, caregiverCols)
	qb.AddEq("c.organization_id", orgID)
	if f.Active != nil {
		qb.AddEq("u.is_active", *f.Active)
	}
	if f.Verified != nil {
		qb.AddEq("u.is_verified", *f.Verified)
	}
	qb.AddContains(f.Search, "c.first_name", "c.last_name", "c.staff_number")
	qb.OrderBy("c.created_at DESC")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count caregivers: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list caregivers: %w", err)
	}
	items, err := collectCaregivers(rows)
	return items, total, err
}

func (r *caregiverRepoPG) Latest(ctx context.Context, orgID uuid.UUID, n int) ([]*Caregiver, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+caregiverCols+` FROM `+caregiverFrom+`
		WHERE c.organization_id = $1 AND u.is_active AND u.is_verified
		ORDER BY c.created_at DESC LIMIT $2`, orgID, n)
	if err != nil {
		return nil, fmt.Errorf("latest caregivers: %w", err)
	}
	return collectCaregivers(rows)
}

func (r *caregiverRepoPG) Basic(ctx context.Context, orgID uuid.UUID) ([]*Caregiver, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+caregiverCols+` FROM `+caregiverFrom+`
		WHERE c.organization_id = $1 AND u.is_active AND u.is_verified
		ORDER BY c.last_name, c.first_name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("basic caregivers: %w", err)
	}
	return collectCaregivers(rows)
}

func (r *caregiverRepoPG) Counts(ctx context.Context, orgID uuid.UUID) (Counts, error) {
	var c Counts
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE u.is_active),
			COUNT(*) FILTER (WHERE u.is_verified)
		FROM `+caregiverFrom+` WHERE c.organization_id = $1`, orgID,
	).Scan(&c.Total, &c.Active, &c.Verified)
	if err != nil {
		return Counts{}, fmt.Errorf("count caregivers: %w", err)
	}
	return c, nil
}

func (r *caregiverRepoPG) ToggleActive(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	var active bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE users u SET is_active = NOT u.is_active, updated_at = NOW()
		FROM caregivers c
		WHERE c.user_id = u.id AND c.id = $1 AND c.organization_id = $2
		RETURNING u.is_active`, id, orgID).Scan(&active)
	if db.IsNoRows(err) {
		return false, apperr.NotFound("caregiver")
	}
	if err != nil {
		return false, fmt.Errorf("toggle caregiver: %w", err)
	}
	return active, nil
}

// NextStaffSequence must run inside a transaction. It takes a transaction
// scoped advisory lock on (organization, type) so concurrent enrollments are
// serialized until the caller commits the new caregiver row.
func (r *caregiverRepoPG) NextStaffSequence(ctx context.Context, orgID uuid.UUID, t Type) (int, error) {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"caregiver_staff:"+orgID.String()+":"+string(t)); err != nil {
		return 0, fmt.Errorf("lock staff sequence: %w", err)
	}
	var next int
	err := conn.QueryRow(ctx, `
		SELECT COALESCE(MAX(split_part(staff_number, '-', 3)::int), 0) + 1
		FROM caregivers WHERE organization_id = $1 AND caregiver_type = $2`, orgID, t).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next staff sequence: %w", err)
	}
	return next, nil
}

func (r *caregiverRepoPG) SetPicture(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE caregivers SET profile_picture_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("set caregiver picture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("caregiver")
	}
	return nil
}

func scanCaregiver(row pgx.Row) (*Caregiver, error) {
	var cg Caregiver
	err := row.Scan(&cg.ID, &cg.UserID, &cg.OrganizationID, &cg.Email, &cg.FirstName, &cg.LastName, &cg.CaregiverType,
		&cg.StaffNumber, &cg.DateOfBirth, &cg.Gender, &cg.MaritalStatus, &cg.PhoneNumber, &cg.Address,
		&cg.ProfilePictureKey, &cg.Active, &cg.Verified, &cg.CreatedAt, &cg.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("caregiver")
	}
	if err != nil {
		return nil, fmt.Errorf("scan caregiver: %w", err)
	}
	return &cg, nil
}

func collectCaregivers(rows pgx.Rows) ([]*Caregiver, error) {
	defer rows.Close()
	var out []*Caregiver
	for rows.Next() {
		cg, err := scanCaregiver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cg)
	}
	return out, rows.Err()
}
