package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/db"
)

type diagnosisRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiagnosisRepo(pool *pgxpool.Pool) DiagnosisRepository {
	return &diagnosisRepoPG{pool: pool}
}

const (
	diagnosisFrom = `patient_diagnoses d
	JOIN patients p ON p.id = d.patient_id
	JOIN organizations o ON o.id = d.organization_id
	JOIN caregivers c ON c.id = d.caregiver_id
	LEFT JOIN vital_signs v ON v.diagnosis_id = d.id`
	diagnosisCols = `d.id, d.patient_id, d.organization_id, d.caregiver_id, d.assessment, d.diagnoses, d.medication,
	d.health_allergies, d.health_care_center, d.notes, d.created_at, d.updated_at,
	p.first_name, p.last_name, p.medical_id, p.profile_picture_key, o.name,
	c.first_name, c.last_name, c.caregiver_type,
	v.id, v.body_temperature, v.pulse_rate, v.blood_pressure, v.blood_oxygen, v.respiration_rate, v.weight,
	v.created_at, v.updated_at`
)

func (r *diagnosisRepoPG) Create(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_diagnoses (id, patient_id, organization_id, caregiver_id, assessment, diagnoses,
			medication, health_allergies, health_care_center, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.OrganizationID, d.CaregiverID, d.Assessment, d.Diagnoses,
		d.Medication, d.HealthAllergies, d.HealthCareCenter, d.Notes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (r *diagnosisRepoPG) Update(ctx context.Context, d *Diagnosis) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient_diagnoses SET
			assessment = $2, diagnoses = $3, medication = $4, health_allergies = $5,
			health_care_center = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Assessment, d.Diagnoses, d.Medication, d.HealthAllergies, d.HealthCareCenter, d.Notes,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("diagnosis")
	}
	if err != nil {
		return fmt.Errorf("update diagnosis: %w", err)
	}
	return nil
}

func (r *diagnosisRepoPG) SaveVitals(ctx context.Context, v *VitalSigns) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO vital_signs (id, diagnosis_id, body_temperature, pulse_rate, blood_pressure, blood_oxygen,
			respiration_rate, weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (diagnosis_id) DO UPDATE SET
			body_temperature = EXCLUDED.body_temperature, pulse_rate = EXCLUDED.pulse_rate,
			blood_pressure = EXCLUDED.blood_pressure, blood_oxygen = EXCLUDED.blood_oxygen,
			respiration_rate = EXCLUDED.respiration_rate, weight = EXCLUDED.weight, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		v.ID, v.DiagnosisID, v.BodyTemperature, v.PulseRate, v.BloodPressure, v.BloodOxygen,
		v.RespirationRate, v.Weight,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save vital signs: %w", err)
	}
	return nil
}

func (r *diagnosisRepoPG) Get(ctx context.Context, orgID, id uuid.UUID) (*Diagnosis, error) {
	return scanDiagnosis(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+diagnosisCols+` FROM `+diagnosisFrom+` WHERE d.id = $1 AND d.organization_id = $2`, id, orgID))
}

func (r *diagnosisRepoPG) Latest(ctx context.Context, orgID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+diagnosisCols+` FROM `+diagnosisFrom+`
		WHERE d.id IN (
			SELECT DISTINCT ON (patient_id) id FROM patient_diagnoses
			WHERE organization_id = $1
			ORDER BY patient_id, created_at DESC
		)
		ORDER BY d.created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("latest diagnoses: %w", err)
	}
	return collectDiagnoses(rows)
}

func (r *diagnosisRepoPG) ForPatient(ctx context.Context, orgID, patientID uuid.UUID, caregiverID *uuid.UUID) ([]*Diagnosis, error) {
	qb := db.NewSearchQuery(diagnosisFrom, diagnosisCols)
	qb.AddEq("d.organization_id", orgID)
	qb.AddEq("d.patient_id", patientID)
	if caregiverID != nil {
		qb.AddEq("d.caregiver_id", *caregiverID)
	}
	qb.OrderBy("d.created_at DESC")
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("patient diagnoses: %w", err)
	}
	return collectDiagnoses(rows)
}

func (r *diagnosisRepoPG) ForOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error) {
	qb := db.NewSearchQuery(diagnosisFrom, diagnosisCols)
	qb.AddEq("d.organization_id", orgID)
	qb.OrderBy("d.created_at DESC")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnoses: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("organization diagnoses: %w", err)
	}
	items, err := collectDiagnoses(rows)
	return items, total, err
}

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var (
		d             Diagnosis
		v             VitalSigns
		cg            caregiver.Caregiver
		patientFirst  string
		patientLast   string
		vitalsID      *uuid.UUID
		vitalsCreated *time.Time
		vitalsUpdated *time.Time
	)
	err := row.Scan(&d.ID, &d.PatientID, &d.OrganizationID, &d.CaregiverID, &d.Assessment, &d.Diagnoses, &d.Medication,
		&d.HealthAllergies, &d.HealthCareCenter, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
		&patientFirst, &patientLast, &d.PatientMedicalID, &d.PatientProfilePictureKey, &d.OrganizationName,
		&cg.FirstName, &cg.LastName, &cg.CaregiverType,
		&vitalsID, &v.BodyTemperature, &v.PulseRate, &v.BloodPressure, &v.BloodOxygen, &v.RespirationRate, &v.Weight,
		&vitalsCreated, &vitalsUpdated)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("diagnosis")
	}
	if err != nil {
		return nil, fmt.Errorf("scan diagnosis: %w", err)
	}
	d.PatientName = (&Patient{FirstName: patientFirst, LastName: patientLast}).FullName()
	d.CaregiverName = cg.FullNameWithRole()
	if vitalsID != nil {
		v.ID, v.DiagnosisID = *vitalsID, d.ID
		if vitalsCreated != nil {
			v.CreatedAt = *vitalsCreated
		}
		if vitalsUpdated != nil {
			v.UpdatedAt = *vitalsUpdated
		}
		d.VitalSigns = &v
	}
	return &d, nil
}

func collectDiagnoses(rows pgx.Rows) ([]*Diagnosis, error) {
	defer rows.Close()
	var out []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
