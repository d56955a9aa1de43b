package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medipt/medipt/internal/platform/auth"
)

// User is a login identity. Role-specific data lives in the organization,
// caregiver and patient profiles that reference it.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	IsActive     bool      `json:"is_active"`
	IsInvited    bool      `json:"is_invited"`
	IsVerified   bool      `json:"is_verified"`
	IsStaff      bool      `json:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the user view returned on login.
type Summary struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Role           auth.Role  `json:"role"`
	IsActive       bool       `json:"is_active"`
	IsVerified     bool       `json:"is_verified"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	CaregiverID    *uuid.UUID `json:"caregiver_id,omitempty"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
}

func summarize(u *User, a auth.Actor) Summary {
	s := Summary{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, IsVerified: u.IsVerified}
	switch v := a.(type) {
	case auth.OrganizationActor:
		s.OrganizationID = &v.OrganizationID
	case auth.CaregiverActor:
		s.OrganizationID = &v.OrganizationID
		s.CaregiverID = &v.CaregiverID
	case auth.PatientActor:
		s.OrganizationID = &v.OrganizationID
		s.PatientID = &v.PatientID
	}
	return s
}

// NormalizeEmail lower-cases and trims an address for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Tenant is the minimal organization view other domains need: display name
// for emails and acronym for generated identifiers.
type Tenant struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Name    string
	Acronym string
}

// TenantDirectory looks up organizations by id. It is implemented by the
// organization repository.
type TenantDirectory interface {
	Tenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
}
