package organization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Organization, error)
	AcronymExists(ctx context.Context, acronym string) (bool, error)
	// Update writes name, address and phone number. The acronym is fixed
	// once the organization exists.
	Update(ctx context.Context, o *Organization) error
	SetLogo(ctx context.Context, id uuid.UUID, key string) error
}
