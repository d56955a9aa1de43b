package caregiver

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/medipt/medipt/pkg/civil"
)

type Caregiver struct {
	ID                uuid.UUID   `json:"id"`
	UserID            uuid.UUID   `json:"user_id"`
	OrganizationID    uuid.UUID   `json:"organization_id"`
	Email             string      `json:"email"`
	FirstName         string      `json:"first_name"`
	LastName          string      `json:"last_name"`
	CaregiverType     Type        `json:"caregiver_type"`
	StaffNumber       string      `json:"staff_number"`
	DateOfBirth       *civil.Date `json:"date_of_birth"`
	Gender            *string     `json:"gender"`
	MaritalStatus     *string     `json:"marital_status"`
	PhoneNumber       *string     `json:"phone_number"`
	Address           *string     `json:"address"`
	ProfilePictureKey *string     `json:"-"`
	ProfilePicture    string      `json:"profile_picture"`
	Active            bool        `json:"active"`
	Verified          bool        `json:"verified"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// FullNameWithRole renders "ABBR. First Last", as shown in caregiver pickers.
func (c *Caregiver) FullNameWithRole() string {
	return fmt.Sprintf("%s. %s %s", c.CaregiverType.Abbreviation(), titleCase(c.FirstName), titleCase(c.LastName))
}

// Basic is the id/name pair listed when assigning a caregiver to a diagnosis.
type Basic struct {
	ID            uuid.UUID `json:"id"`
	CaregiverName string    `json:"caregiver_name"`
}

type ListFilter struct {
	Active   *bool
	Verified *bool
	// Search matches first name, last name or staff number.
	Search string
	Limit  int
	Offset int
}

type Counts struct {
	Total    int `json:"total_caregivers"`
	Active   int `json:"active_caregivers"`
	Verified int `json:"verified_caregivers"`
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
