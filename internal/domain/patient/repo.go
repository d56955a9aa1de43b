package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients and their medical records. Lookups that take
// an organization id never return rows of another organization.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	MedicalIDExists(ctx context.Context, medicalID string) (bool, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Patient, error)
	// GetByMedicalID is unscoped; callers apply the tenant check. The
	// medical record is loaded when present.
	GetByMedicalID(ctx context.Context, medicalID string) (*Patient, error)
	List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]*Patient, int, error)
	Latest(ctx context.Context, orgID uuid.UUID, n int) ([]*Patient, error)
	Counts(ctx context.Context, orgID uuid.UUID) (Counts, error)
	// Update writes the demographic fields. The medical id is never written.
	Update(ctx context.Context, p *Patient) error
	ToggleActive(ctx context.Context, orgID, id uuid.UUID) (bool, error)
	SetPicture(ctx context.Context, id uuid.UUID, key string) error

	SaveMedicalRecord(ctx context.Context, r *MedicalRecord) error
}

// DiagnosisRepository persists diagnoses and their vital signs. Reads are
// scoped to an organization and return the display fields.
type DiagnosisRepository interface {
	Create(ctx context.Context, d *Diagnosis) error
	Update(ctx context.Context, d *Diagnosis) error
	// SaveVitals inserts the diagnosis's vital signs or replaces them.
	SaveVitals(ctx context.Context, v *VitalSigns) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*Diagnosis, error)
	// Latest returns the newest diagnosis of every patient.
	Latest(ctx context.Context, orgID uuid.UUID) ([]*Diagnosis, error)
	// ForPatient returns a patient's history, newest first, optionally only
	// the diagnoses authored by one caregiver.
	ForPatient(ctx context.Context, orgID, patientID uuid.UUID, caregiverID *uuid.UUID) ([]*Diagnosis, error)
	ForOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error)
}
