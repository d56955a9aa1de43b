package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/medipt/medipt/internal/platform/auth"
)

// UserRepository persists users. Lookups by email are case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
	// Activate marks the user active and verified.
	Activate(ctx context.Context, id uuid.UUID) error
	auth.ActorResolver
}
