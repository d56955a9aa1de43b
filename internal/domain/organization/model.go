package organization

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/domain/patient"
)

type Organization struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Acronym     string    `json:"acronym"`
	Address     *string   `json:"address"`
	PhoneNumber *string   `json:"phone_number"`
	LogoKey     *string   `json:"-"`
	Logo        string    `json:"logo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NormalizeName title-cases an organization name for storage.
func NormalizeName(name string) string {
	// A Caser carries state, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(strings.Fields(name), " "))
}

// NormalizeAcronym upper-cases an acronym. Acronyms prefix staff numbers and
// medical ids, so they are compared and stored in this form.
func NormalizeAcronym(acronym string) string {
	return strings.ToUpper(strings.TrimSpace(acronym))
}

type Statistics struct {
	Caregivers caregiver.Counts `json:"caregivers"`
	Patients   patient.Counts   `json:"patients"`
}

// Dashboard is the organization landing page: head counts plus the newest
// active, verified caregivers and patients.
type Dashboard struct {
	Statistics       Statistics             `json:"statistics"`
	LatestCaregivers []*caregiver.Caregiver `json:"latest_caregivers"`
	LatestPatients   []*patient.Patient     `json:"latest_patients"`
}
