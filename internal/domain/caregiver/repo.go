package caregiver

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists caregivers. Every read except GetByUserID is scoped to
// an organization; a caregiver of another organization is reported as not
// found.
type Repository interface {
	Create(ctx context.Context, c *Caregiver) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Caregiver, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Caregiver, error)
	List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]*Caregiver, int, error)
	Latest(ctx context.Context, orgID uuid.UUID, n int) ([]*Caregiver, error)
	Basic(ctx context.Context, orgID uuid.UUID) ([]*Caregiver, error)
	Counts(ctx context.Context, orgID uuid.UUID) (Counts, error)
	// ToggleActive flips the linked user's is_active and returns the new value.
	ToggleActive(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	// NextStaffSequence returns one past the highest staff sequence used for
	// type t in the organization.
	NextStaffSequence(ctx context.Context, orgID uuid.UUID, t Type) (int, error)
	SetPicture(ctx context.Context, id uuid.UUID, key string) error
}
