package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
)

type VitalsInput struct {
	BodyTemperature *decimal.Decimal
	PulseRate       *int
	BloodPressure   *string
	BloodOxygen     *decimal.Decimal
	RespirationRate *int
	Weight          *decimal.Decimal
}

func (in *VitalsInput) validate(fields fieldErrors) {
	if in == nil {
		return
	}
	fields.numeric("vital_signs.body_temperature", in.BodyTemperature, temperatureRule)
	fields.numeric("vital_signs.blood_oxygen", in.BloodOxygen, oxygenRule)
	fields.numeric("vital_signs.weight", in.Weight, weightRule)
	fields.nonNegative("vital_signs.pulse_rate", in.PulseRate)
	fields.nonNegative("vital_signs.respiration_rate", in.RespirationRate)
}

// apply copies the supplied readings onto v.
func (in *VitalsInput) apply(v *VitalSigns) {
	if in.BodyTemperature != nil {
		v.BodyTemperature = nullDecimal(in.BodyTemperature)
	}
	if in.PulseRate != nil {
		v.PulseRate = in.PulseRate
	}
	if in.BloodPressure != nil {
		v.BloodPressure = in.BloodPressure
	}
	if in.BloodOxygen != nil {
		v.BloodOxygen = nullDecimal(in.BloodOxygen)
	}
	if in.RespirationRate != nil {
		v.RespirationRate = in.RespirationRate
	}
	if in.Weight != nil {
		v.Weight = nullDecimal(in.Weight)
	}
}

type DiagnosisInput struct {
	// CaregiverID is required from organizations and ignored for caregivers,
	// who are always recorded as the author.
	CaregiverID      *uuid.UUID
	Assessment       string
	Diagnoses        string
	Medication       string
	HealthAllergies  *string
	HealthCareCenter string
	Notes            string
	VitalSigns       VitalsInput
}

// CreateDiagnosis records a diagnosis and its vital signs for a patient of
// the actor's organization.
func (s *Service) CreateDiagnosis(ctx context.Context, actor auth.Actor, patientID uuid.UUID, in DiagnosisInput) (*Diagnosis, error) {
	var orgID, caregiverID uuid.UUID
	switch a := actor.(type) {
	case auth.OrganizationActor:
		if in.CaregiverID == nil {
			return nil, apperr.ValidationFields(map[string]string{"caregiver_id": "this field is required"})
		}
		orgID = a.OrganizationID
		cg, err := s.caregivers.InOrganization(ctx, orgID, *in.CaregiverID)
		if err != nil {
			return nil, err
		}
		caregiverID = cg.ID
	case auth.CaregiverActor:
		orgID, caregiverID = a.OrganizationID, a.CaregiverID
	default:
		return nil, apperr.Forbidden("only organizations and caregivers can record diagnoses")
	}

	fields := fieldErrors{}
	in.VitalSigns.validate(fields)
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	p, err := s.repo.GetByID(ctx, orgID, patientID)
	if err != nil {
		return nil, err
	}

	d := &Diagnosis{
		ID:               uuid.New(),
		PatientID:        p.ID,
		OrganizationID:   orgID,
		CaregiverID:      caregiverID,
		Assessment:       in.Assessment,
		Diagnoses:        in.Diagnoses,
		Medication:       in.Medication,
		HealthAllergies:  in.HealthAllergies,
		HealthCareCenter: in.HealthCareCenter,
		Notes:            in.Notes,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.diagnoses.Create(ctx, d); err != nil {
			return err
		}
		v := &VitalSigns{DiagnosisID: d.ID}
		in.VitalSigns.apply(v)
		return s.diagnoses.SaveVitals(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("diagnosis_id", d.ID.String()).
		Str("medical_id", p.MedicalID).
		Str("caregiver_id", caregiverID.String()).
		Msg("diagnosis recorded")
	return s.loadDiagnosis(ctx, orgID, d.ID)
}

type DiagnosisPatch struct {
	Assessment       *string
	Diagnoses        *string
	Medication       *string
	HealthAllergies  *string
	HealthCareCenter *string
	Notes            *string
	VitalSigns       *VitalsInput
}

// UpdateDiagnosis patches a diagnosis and creates or patches its vital
// signs in one transaction. Caregivers may only update diagnoses they
// recorded.
func (s *Service) UpdateDiagnosis(ctx context.Context, actor auth.Actor, id uuid.UUID, patch DiagnosisPatch) (*Diagnosis, error) {
	orgID, err := auth.RequireStaff(actor)
	if err != nil {
		return nil, err
	}
	fields := fieldErrors{}
	patch.VitalSigns.validate(fields)
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	d, err := s.diagnoses.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if cg, ok := actor.(auth.CaregiverActor); ok && d.CaregiverID != cg.CaregiverID {
		return nil, apperr.NotFound("diagnosis")
	}
	setString(&d.Assessment, patch.Assessment)
	setString(&d.Diagnoses, patch.Diagnoses)
	setString(&d.Medication, patch.Medication)
	setOptional(&d.HealthAllergies, patch.HealthAllergies)
	setString(&d.HealthCareCenter, patch.HealthCareCenter)
	setString(&d.Notes, patch.Notes)

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.diagnoses.Update(ctx, d); err != nil {
			return err
		}
		if patch.VitalSigns == nil {
			return nil
		}
		v := d.VitalSigns
		if v == nil {
			v = &VitalSigns{DiagnosisID: d.ID}
		}
		patch.VitalSigns.apply(v)
		return s.diagnoses.SaveVitals(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("diagnosis_id", d.ID.String()).Msg("diagnosis updated")
	return s.loadDiagnosis(ctx, orgID, d.ID)
}

// LatestDiagnoses returns the newest diagnosis of each patient in the
// actor's organization.
func (s *Service) LatestDiagnoses(ctx context.Context, actor auth.Actor) ([]*Diagnosis, error) {
	orgID, err := auth.RequireStaff(actor)
	if err != nil {
		return nil, err
	}
	items, err := s.diagnoses.Latest(ctx, orgID)
	if err != nil {
		return nil, err
	}
	s.decorateDiagnoses(items...)
	return items, nil
}

// PatientHistory returns a patient's diagnoses, newest first. Caregivers
// see only the diagnoses they recorded.
func (s *Service) PatientHistory(ctx context.Context, actor auth.Actor, medicalID string) ([]*Diagnosis, error) {
	p, err := s.visible(ctx, actor, medicalID)
	if err != nil {
		return nil, err
	}
	var author *uuid.UUID
	if cg, ok := actor.(auth.CaregiverActor); ok {
		author = &cg.CaregiverID
	}
	items, err := s.diagnoses.ForPatient(ctx, p.OrganizationID, p.ID, author)
	if err != nil {
		return nil, err
	}
	s.decorateDiagnoses(items...)
	return items, nil
}

// DiagnosisDetail returns one diagnosis with its vital signs under the same
// visibility rules as PatientHistory.
func (s *Service) DiagnosisDetail(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Diagnosis, error) {
	orgID, err := auth.TenantOf(actor)
	if err != nil {
		return nil, err
	}
	d, err := s.diagnoses.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	switch a := actor.(type) {
	case auth.PatientActor:
		if d.PatientID != a.PatientID {
			return nil, apperr.NotFound("diagnosis")
		}
	case auth.CaregiverActor:
		if d.CaregiverID != a.CaregiverID {
			return nil, apperr.NotFound("diagnosis")
		}
	}
	s.decorateDiagnoses(d)
	return d, nil
}

// OrganizationHistory pages through every diagnosis of the organization,
// newest first.
func (s *Service) OrganizationHistory(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Diagnosis, int, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.diagnoses.ForOrganization(ctx, org.OrganizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.decorateDiagnoses(items...)
	return items, total, nil
}

func (s *Service) loadDiagnosis(ctx context.Context, orgID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.diagnoses.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	s.decorateDiagnoses(d)
	return d, nil
}

func (s *Service) decorateDiagnoses(items ...*Diagnosis) {
	for _, d := range items {
		d.PatientProfilePicture = ""
		if d.PatientProfilePictureKey != nil {
			d.PatientProfilePicture = s.blobs.URL(*d.PatientProfilePictureKey)
		}
	}
}
