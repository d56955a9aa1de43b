package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medipt/medipt/pkg/civil"
)

type Patient struct {
	ID                   uuid.UUID      `json:"id"`
	UserID               uuid.UUID      `json:"user_id"`
	OrganizationID       uuid.UUID      `json:"organization_id"`
	Email                string         `json:"email"`
	FirstName            string         `json:"first_name"`
	LastName             string         `json:"last_name"`
	MedicalID            string         `json:"medical_id"`
	DateOfBirth          *civil.Date    `json:"date_of_birth"`
	MaritalStatus        *string        `json:"marital_status"`
	Gender               *string        `json:"gender"`
	PhoneNumber          *string        `json:"phone_number"`
	EmergencyPhoneNumber *string        `json:"emergency_phone_number"`
	Address              *string        `json:"address"`
	ProfilePictureKey    *string        `json:"-"`
	ProfilePicture       string         `json:"profile_picture"`
	Active               bool           `json:"active"`
	Verified             bool           `json:"verified"`
	MedicalRecord        *MedicalRecord `json:"medical_record,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// FullName is "Last First", the order used on clinical listings.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.LastName + " " + p.FirstName)
}

type MedicalRecord struct {
	ID         uuid.UUID           `json:"id"`
	PatientID  uuid.UUID           `json:"-"`
	BloodGroup string              `json:"blood_group"`
	Genotype   string              `json:"genotype"`
	Weight     decimal.NullDecimal `json:"weight"`
	Height     decimal.NullDecimal `json:"height"`
	Allergies  *string             `json:"allergies"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// MedicalID formats the identifier printed on a patient's records:
// the organization acronym and the first eight hex digits of seed.
func MedicalID(acronym string, seed uuid.UUID) string {
	hex := strings.ReplaceAll(seed.String(), "-", "")
	return fmt.Sprintf("%s_%s", strings.ToUpper(acronym), strings.ToUpper(hex[:8]))
}

type ListFilter struct {
	// Search matches first name, last name or medical id.
	Search    string
	MedicalID string
	Active    *bool
	Verified  *bool
	Limit     int
	Offset    int
}

type Counts struct {
	Total          int `json:"total_patients"`
	Active         int `json:"active_patients"`
	Verified       int `json:"verified_patients"`
	ActiveMale     int `json:"active_male"`
	ActiveFemale   int `json:"active_female"`
	VerifiedMale   int `json:"verified_male"`
	VerifiedFemale int `json:"verified_female"`
}

// Diagnosis is one clinical encounter recorded by a caregiver. The patient,
// organization and caregiver display fields are filled on reads.
type Diagnosis struct {
	ID               uuid.UUID   `json:"id"`
	PatientID        uuid.UUID   `json:"patient_id"`
	OrganizationID   uuid.UUID   `json:"organization_id"`
	CaregiverID      uuid.UUID   `json:"caregiver_id"`
	Assessment       string      `json:"assessment"`
	Diagnoses        string      `json:"diagnoses"`
	Medication       string      `json:"medication"`
	HealthAllergies  *string     `json:"health_allergies"`
	HealthCareCenter string      `json:"health_care_center"`
	Notes            string      `json:"notes"`
	VitalSigns       *VitalSigns `json:"vital_signs"`

	PatientName              string  `json:"patient_name"`
	PatientMedicalID         string  `json:"patient_medical_id"`
	PatientProfilePictureKey *string `json:"-"`
	PatientProfilePicture    string  `json:"patient_profile_picture"`
	OrganizationName         string  `json:"organization_name"`
	CaregiverName            string  `json:"caregiver_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VitalSigns struct {
	ID              uuid.UUID           `json:"id"`
	DiagnosisID     uuid.UUID           `json:"-"`
	BodyTemperature decimal.NullDecimal `json:"body_temperature"`
	PulseRate       *int                `json:"pulse_rate"`
	BloodPressure   *string             `json:"blood_pressure"`
	BloodOxygen     decimal.NullDecimal `json:"blood_oxygen"`
	RespirationRate *int                `json:"respiration_rate"`
	Weight          decimal.NullDecimal `json:"weight"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
