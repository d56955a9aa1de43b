package invite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists invites. Soft-deleted invites are invisible to every
// method. The *ForUpdate lookups lock the row for the rest of the current
// transaction.
type Repository interface {
	// Create fails with ErrActiveInvitation when a live invite for the same
	// email and organization already exists.
	Create(ctx context.Context, inv *Invite) error
	GetForUpdate(ctx context.Context, orgID uuid.UUID, email string) (*Invite, error)
	GetByTokenHashForUpdate(ctx context.Context, hash string) (*Invite, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Invite, error)
	// Update writes token hash, status, resend count, expiry and inviter.
	Update(ctx context.Context, inv *Invite) error
	List(ctx context.Context, orgID uuid.UUID, status *Status, limit, offset int) ([]*Invite, int, error)
	SoftDelete(ctx context.Context, orgID, id uuid.UUID, at time.Time) error
}
