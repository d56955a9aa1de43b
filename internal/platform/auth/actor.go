package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the role stored on a user account.
type Role string

const (
	RoleOrganization      Role = "organization"
	RoleCaregiver         Role = "caregiver"
	RolePatient           Role = "patient"
	RoleOrganizationAdmin Role = "organization_admin"
	// RoleNone marks platform staff accounts, which carry no tenant profile.
	RoleNone Role = ""
)

func (r Role) Valid() bool {
	switch r {
	case RoleOrganization, RoleCaregiver, RolePatient, RoleOrganizationAdmin, RoleNone:
		return true
	}
	return false
}

// Actor is the authenticated principal performing an operation. It is one of
// OrganizationActor, CaregiverActor, PatientActor or AdminActor; callers
// dispatch with a type switch rather than probing for profiles.
type Actor interface {
	UserID() uuid.UUID
	Role() Role
	actor()
}

type OrganizationActor struct {
	User           uuid.UUID
	OrganizationID uuid.UUID
}

type CaregiverActor struct {
	User           uuid.UUID
	CaregiverID    uuid.UUID
	OrganizationID uuid.UUID
}

type PatientActor struct {
	User           uuid.UUID
	PatientID      uuid.UUID
	OrganizationID uuid.UUID
}

// AdminActor is a platform staff account with no tenant.
type AdminActor struct {
	User uuid.UUID
}

func (a OrganizationActor) UserID() uuid.UUID { return a.User }
func (a CaregiverActor) UserID() uuid.UUID    { return a.User }
func (a PatientActor) UserID() uuid.UUID      { return a.User }
func (a AdminActor) UserID() uuid.UUID        { return a.User }

func (OrganizationActor) Role() Role { return RoleOrganization }
func (CaregiverActor) Role() Role    { return RoleCaregiver }
func (PatientActor) Role() Role      { return RolePatient }
func (AdminActor) Role() Role        { return RoleNone }

func (OrganizationActor) actor() {}
func (CaregiverActor) actor()    {}
func (PatientActor) actor()      {}
func (AdminActor) actor()        {}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor stored by the JWT middleware. Handlers
// call it once and pass the result explicitly into services.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
