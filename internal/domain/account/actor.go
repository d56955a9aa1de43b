package account

import (
	"github.com/google/uuid"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
)

var errProfileMismatch = apperr.Unauthenticated("unauthenticated", "account profile is missing or does not match its role")

// Profiles is the set of profile ids joined onto a user when resolving the
// actor. At most one of them is expected to be set.
type Profiles struct {
	OrganizationID *uuid.UUID
	CaregiverID    *uuid.UUID
	CaregiverOrgID *uuid.UUID
	PatientID      *uuid.UUID
	PatientOrgID   *uuid.UUID
}

// BuildActor derives the actor for a user from its role and loaded profiles.
// An inactive user, or a role without its matching profile, is rejected.
func BuildActor(userID uuid.UUID, role auth.Role, active bool, p Profiles) (auth.Actor, error) {
	if !active {
		return nil, apperr.Unauthenticated("unauthenticated", "user account is inactive")
	}
	switch role {
	case auth.RoleOrganization:
		if p.OrganizationID == nil {
			return nil, errProfileMismatch
		}
		return auth.OrganizationActor{User: userID, OrganizationID: *p.OrganizationID}, nil
	case auth.RoleCaregiver:
		if p.CaregiverID == nil || p.CaregiverOrgID == nil {
			return nil, errProfileMismatch
		}
		return auth.CaregiverActor{User: userID, CaregiverID: *p.CaregiverID, OrganizationID: *p.CaregiverOrgID}, nil
	case auth.RolePatient:
		if p.PatientID == nil || p.PatientOrgID == nil {
			return nil, errProfileMismatch
		}
		return auth.PatientActor{User: userID, PatientID: *p.PatientID, OrganizationID: *p.PatientOrgID}, nil
	case auth.RoleNone:
		if p.OrganizationID != nil || p.CaregiverID != nil || p.PatientID != nil {
			return nil, errProfileMismatch
		}
		return auth.AdminActor{User: userID}, nil
	}
	return nil, errProfileMismatch
}
