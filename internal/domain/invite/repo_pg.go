package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/db"
)

type inviteRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &inviteRepoPG{pool: pool}
}

const inviteCols = `id, organization_id, email, role, token_hash, status, resend_count, expires_at,
	invited_by, created_at, updated_at, deleted_at`

// Unique index on (lower(email), organization_id) WHERE deleted_at IS NULL.
const activeInviteIndex = "caregiver_invites_email_org_active_key"

func (r *inviteRepoPG) Create(ctx context.Context, inv *Invite) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO caregiver_invites (id, organization_id, email, role, token_hash, status, resend_count, expires_at, invited_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.TokenHash, inv.Status, inv.ResendCount, inv.ExpiresAt, inv.InvitedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		if constraint == activeInviteIndex {
			return apperr.ErrActiveInvitation.Wrap(err)
		}
		return fmt.Errorf("insert invite: %w", err)
	}
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (r *inviteRepoPG) GetForUpdate(ctx context.Context, orgID uuid.UUID, email string) (*Invite, error) {
	return scanInvite(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+inviteCols+` FROM caregiver_invites
		WHERE lower(email) = $1 AND organization_id = $2 AND deleted_at IS NULL
		FOR UPDATE`, account.NormalizeEmail(email), orgID))
}

func (r *inviteRepoPG) GetByTokenHashForUpdate(ctx context.Context, hash string) (*Invite, error) {
	return scanInvite(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+inviteCols+` FROM caregiver_invites
		WHERE token_hash = $1 AND deleted_at IS NULL
		FOR UPDATE`, hash))
}

func (r *inviteRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Invite, error) {
	return scanInvite(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+inviteCols+` FROM caregiver_invites
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, id, orgID))
}

func (r *inviteRepoPG) Update(ctx context.Context, inv *Invite) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE caregiver_invites SET
			token_hash = $2, status = $3, resend_count = $4, expires_at = $5, invited_by = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`,
		inv.ID, inv.TokenHash, inv.Status, inv.ResendCount, inv.ExpiresAt, inv.InvitedBy,
	).Scan(&inv.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.ErrInvitationNotFound
	}
	if err != nil {
		return fmt.Errorf("update invite: %w", err)
	}
	return nil
}

func (r *inviteRepoPG) List(ctx context.Context, orgID uuid.UUID, status *Status, limit, offset int) ([]*Invite, int, error) {
	qb := db.NewSearchQuery("caregiver_invites", inviteCols)
	qb.AddEq("organization_id", orgID)
	qb.Add("deleted_at IS NULL")
	if status != nil {
		qb.AddEq("status", *status)
	}
	qb.OrderBy("created_at DESC")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invites: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var out []*Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *inviteRepoPG) SoftDelete(ctx context.Context, orgID, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE caregiver_invites SET deleted_at = $3, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, id, orgID, at)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrInvitationNotFound
	}
	return nil
}

func scanInvite(row pgx.Row) (*Invite, error) {
	var inv Invite
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.TokenHash, &inv.Status,
		&inv.ResendCount, &inv.ExpiresAt, &inv.InvitedBy, &inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt)
	if db.IsNoRows(err) {
		return nil, apperr.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	return &inv, nil
}
