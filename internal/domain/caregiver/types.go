package caregiver

import (
	"fmt"
	"strings"

	"github.com/medipt/medipt/internal/platform/validation"
)

// Type is the professional role of a caregiver. Invitations carry one as the
// role being offered.
type Type string

const (
	Doctor                Type = "Doctor"
	Nurse                 Type = "Nurse"
	AdministrativeStaff   Type = "Administrative Staff"
	Pharmacist            Type = "Pharmacist"
	Surgeon               Type = "Surgeon"
	Physician             Type = "Physician"
	Dentist               Type = "Dentist"
	Optometrist           Type = "Optometrist"
	Radiologist           Type = "Radiologist"
	Psychiatrist          Type = "Psychiatrist"
	PhysicalTherapist     Type = "Physical Therapist"
	OccupationalTherapist Type = "Occupational Therapist"
	MedicalLabTechnician  Type = "Medical Lab Technician"
	Paramedic             Type = "Paramedic"
	Dietitian             Type = "Dietitian"
	SpeechTherapist       Type = "Speech Therapist"
	MedicalAssistant      Type = "Medical Assistant"
	RespiratoryTherapist  Type = "Respiratory Therapist"
	Midwife               Type = "Midwife"
	Orthopedist           Type = "Orthopedist"
	Cardiologist          Type = "Cardiologist"
	Neurologist           Type = "Neurologist"
	Pediatrician          Type = "Pediatrician"
	Dermatologist         Type = "Dermatologist"
	Gynecologist          Type = "Gynecologist"
	Urologist             Type = "Urologist"
	Oncologist            Type = "Oncologist"
	Endocrinologist       Type = "Endocrinologist"
	Anesthesiologist      Type = "Anesthesiologist"
)

var abbreviations = map[Type]string{
	Doctor:                "DR",
	Nurse:                 "NUR",
	AdministrativeStaff:   "AD",
	Pharmacist:            "PH",
	Surgeon:               "SRG",
	Physician:             "PHY",
	Dentist:               "DNT",
	Optometrist:           "OPT",
	Radiologist:           "RAD",
	Psychiatrist:          "PSY",
	PhysicalTherapist:     "PT",
	OccupationalTherapist: "OT",
	MedicalLabTechnician:  "MLT",
	Paramedic:             "PMD",
	Dietitian:             "DT",
	SpeechTherapist:       "ST",
	MedicalAssistant:      "MA",
	RespiratoryTherapist:  "RT",
	Midwife:               "MW",
	Orthopedist:           "ORTH",
	Cardiologist:          "CARD",
	Neurologist:           "NEU",
	Pediatrician:          "PED",
	Dermatologist:         "DERM",
	Gynecologist:          "GYN",
	Urologist:             "URO",
	Oncologist:            "ONC",
	Endocrinologist:       "ENDO",
	Anesthesiologist:      "ANES",
}

// Types lists every caregiver type in display order.
var Types = []Type{
	Doctor, Nurse, AdministrativeStaff, Pharmacist, Surgeon, Physician, Dentist,
	Optometrist, Radiologist, Psychiatrist, PhysicalTherapist, OccupationalTherapist,
	MedicalLabTechnician, Paramedic, Dietitian, SpeechTherapist, MedicalAssistant,
	RespiratoryTherapist, Midwife, Orthopedist, Cardiologist, Neurologist, Pediatrician,
	Dermatologist, Gynecologist, Urologist, Oncologist, Endocrinologist, Anesthesiologist,
}

func init() {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	validation.RegisterEnum("caregivertype", names)
}

func (t Type) Valid() bool {
	_, ok := abbreviations[t]
	return ok
}

// Abbreviation returns the short code used in staff numbers and display
// names, or "" for an unknown type.
func (t Type) Abbreviation() string {
	return abbreviations[t]
}

// StaffNumber formats the staff number for the seq-th caregiver of type t in
// the organization with the given acronym, e.g. "ACM-NUR-0007".
func StaffNumber(acronym string, t Type, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", strings.ToUpper(acronym), t.Abbreviation(), seq)
}
