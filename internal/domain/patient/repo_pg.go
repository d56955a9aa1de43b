package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

const (
	patientFrom = `patients p JOIN users u ON u.id = p.user_id`
	patientCols = `p.id, p.user_id, p.organization_id, u.email, p.first_name, p.last_name, p.medical_id,
	p.date_of_birth, p.marital_status, p.gender, p.phone_number, p.emergency_phone_number, p.address,
	p.profile_picture_key, u.is_active, u.is_verified, p.created_at, p.updated_at`
	recordCols = `id, patient_id, blood_group, genotype, weight, height, allergies, created_at, updated_at`

	medicalIDKey = "patients_medical_id_key"
)

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, organization_id, first_name, last_name, medical_id, date_of_birth,
			marital_status, gender, phone_number, emergency_phone_number, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.OrganizationID, p.FirstName, p.LastName, p.MedicalID, p.DateOfBirth,
		p.MaritalStatus, p.Gender, p.PhoneNumber, p.EmergencyPhoneNumber, p.Address,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		if constraint == medicalIDKey {
			return apperr.Conflict("medical_id_taken", "medical id is already assigned").Wrap(err)
		}
		return apperr.Conflict("patient_exists", "patient already exists").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) MedicalIDExists(ctx context.Context, medicalID string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE medical_id = $1)`, medicalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check medical id: %w", err)
	}
	return exists, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, orgID, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.id = $1 AND p.organization_id = $2`, id, orgID))
}

func (r *patientRepoPG) GetByMedicalID(ctx context.Context, medicalID string) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.medical_id = $1`, medicalID))
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM patient_medical_records WHERE patient_id = $1`, p.ID))
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
	case err != nil:
		return nil, err
	default:
		p.MedicalRecord = rec
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context, orgID uuid.UUID, f ListFilter) ([]*Patient, int, error) {
	qb := db.NewSearchQuery(patientFrom, patientCols)
	qb.AddEq("p.organization_id", orgID)
	qb.AddEq("u.role", "patient")
	if f.MedicalID != "" {
		qb.AddEq("p.medical_id", f.MedicalID)
	}
	if f.Active != nil {
		qb.AddEq("u.is_active", *f.Active)
	}
	if f.Verified != nil {
		qb.AddEq("u.is_verified", *f.Verified)
	}
	qb.AddContains(f.Search, "p.first_name", "p.last_name", "p.medical_id")
	qb.OrderBy("p.created_at DESC")

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, qb.DataSQL(), qb.DataArgs(f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	items, err := collectPatients(rows)
	return items, total, err
}

func (r *patientRepoPG) Latest(ctx context.Context, orgID uuid.UUID, n int) ([]*Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+patientCols+` FROM `+patientFrom+`
		WHERE p.organization_id = $1 AND u.is_active AND u.is_verified
		ORDER BY p.created_at DESC LIMIT $2`, orgID, n)
	if err != nil {
		return nil, fmt.Errorf("latest patients: %w", err)
	}
	return collectPatients(rows)
}

func (r *patientRepoPG) Counts(ctx context.Context, orgID uuid.UUID) (Counts, error) {
	var c Counts
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE u.is_active),
			COUNT(*) FILTER (WHERE u.is_verified),
			COUNT(*) FILTER (WHERE u.is_active AND p.gender = 'Male'),
			COUNT(*) FILTER (WHERE u.is_active AND p.gender = 'Female'),
			COUNT(*) FILTER (WHERE u.is_verified AND p.gender = 'Male'),
			COUNT(*) FILTER (WHERE u.is_verified AND p.gender = 'Female')
		FROM `+patientFrom+` WHERE p.organization_id = $1`, orgID,
	).Scan(&c.Total, &c.Active, &c.Verified, &c.ActiveMale, &c.ActiveFemale, &c.VerifiedMale, &c.VerifiedFemale)
	if err != nil {
		return Counts{}, fmt.Errorf("count patients: %w", err)
	}
	return c, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET
			first_name = $2, last_name = $3, date_of_birth = $4, marital_status = $5, gender = $6,
			phone_number = $7, emergency_phone_number = $8, address = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.MaritalStatus, p.Gender,
		p.PhoneNumber, p.EmergencyPhoneNumber, p.Address,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("patient")
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) ToggleActive(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	var active bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE users u SET is_active = NOT u.is_active, updated_at = NOW()
		FROM patients p
		WHERE p.user_id = u.id AND p.id = $1 AND p.organization_id = $2
		RETURNING u.is_active`, id, orgID).Scan(&active)
	if db.IsNoRows(err) {
		return false, apperr.NotFound("patient")
	}
	if err != nil {
		return false, fmt.Errorf("toggle patient: %w", err)
	}
	return active, nil
}

func (r *patientRepoPG) SetPicture(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE patients SET profile_picture_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("set patient picture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) SaveMedicalRecord(ctx context.Context, rec *MedicalRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_medical_records (id, patient_id, blood_group, genotype, weight, height, allergies)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id) DO UPDATE SET
			blood_group = EXCLUDED.blood_group, genotype = EXCLUDED.genotype, weight = EXCLUDED.weight,
			height = EXCLUDED.height, allergies = EXCLUDED.allergies, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		rec.ID, rec.PatientID, rec.BloodGroup, rec.Genotype, rec.Weight, rec.Height, rec.Allergies,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save medical record: %w", err)
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.OrganizationID, &p.Email, &p.FirstName, &p.LastName, &p.MedicalID,
		&p.DateOfBirth, &p.MaritalStatus, &p.Gender, &p.PhoneNumber, &p.EmergencyPhoneNumber, &p.Address,
		&p.ProfilePictureKey, &p.Active, &p.Verified, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient")
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.BloodGroup, &rec.Genotype, &rec.Weight, &rec.Height,
		&rec.Allergies, &rec.CreatedAt, &rec.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medical record")
	}
	if err != nil {
		return nil, fmt.Errorf("scan medical record: %w", err)
	}
	return &rec, nil
}
