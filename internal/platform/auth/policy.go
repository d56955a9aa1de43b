package auth

import (
	"github.com/google/uuid"

	"github.com/medipt/medipt/internal/platform/apperr"
)

// Role gates. Each returns the narrowed actor or a Forbidden error; they never
// report a bare false.

func RequireOrganization(a Actor) (OrganizationActor, error) {
	if o, ok := a.(OrganizationActor); ok {
		return o, nil
	}
	return OrganizationActor{}, apperr.Forbidden("only organization accounts can perform this action")
}

func RequireCaregiver(a Actor) (CaregiverActor, error) {
	if cg, ok := a.(CaregiverActor); ok {
		return cg, nil
	}
	return CaregiverActor{}, apperr.Forbidden("only caregiver accounts can perform this action")
}

// RequirePatientOwner admits a patient acting on their own record.
func RequirePatientOwner(a Actor, recordUserID uuid.UUID) (PatientActor, error) {
	p, ok := a.(PatientActor)
	if !ok || p.User != recordUserID {
		return PatientActor{}, apperr.Forbidden("patients may only access their own record")
	}
	return p, nil
}

// RequireOrganizationOwner admits an organization acting on an object whose
// owning user is itself.
func RequireOrganizationOwner(a Actor, ownerUserID uuid.UUID) (OrganizationActor, error) {
	o, err := RequireOrganization(a)
	if err != nil {
		return OrganizationActor{}, err
	}
	if o.User != ownerUserID {
		return OrganizationActor{}, apperr.Forbidden("you do not own this organization")
	}
	return o, nil
}

// RequireStaff admits organization and caregiver actors, the two roles that
// manage clinical records.
func RequireStaff(a Actor) (uuid.UUID, error) {
	switch v := a.(type) {
	case OrganizationActor:
		return v.OrganizationID, nil
	case CaregiverActor:
		return v.OrganizationID, nil
	}
	return uuid.Nil, apperr.Forbidden("only organizations and caregivers can perform this action")
}

// TenantOf resolves the organization every query by a must be scoped to.
func TenantOf(a Actor) (uuid.UUID, error) {
	switch v := a.(type) {
	case OrganizationActor:
		return v.OrganizationID, nil
	case CaregiverActor:
		return v.OrganizationID, nil
	case PatientActor:
		return v.OrganizationID, nil
	}
	return uuid.Nil, apperr.Forbidden("account is not attached to an organization")
}

// PatientScope describes the ownership of a patient record for composite checks.
type PatientScope struct {
	PatientUserID  uuid.UUID
	OrganizationID uuid.UUID
}

// CanUpdatePatientRegistration allows the patient themself, the owning
// organization, or a caregiver of that organization.
func CanUpdatePatientRegistration(a Actor, p PatientScope) error {
	switch v := a.(type) {
	case PatientActor:
		if v.User == p.PatientUserID {
			return nil
		}
	case OrganizationActor:
		if v.OrganizationID == p.OrganizationID {
			return nil
		}
	case CaregiverActor:
		if v.OrganizationID == p.OrganizationID {
			return nil
		}
	}
	return apperr.Forbidden("you do not have permission to update this patient")
}
