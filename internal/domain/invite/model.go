package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medipt/medipt/internal/domain/caregiver"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusExpired:
		return true
	}
	return false
}

// Invite is an organization's invitation for an email address to join as a
// caregiver of the given type. Only the hash of its token is stored.
type Invite struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Email          string         `json:"email"`
	Role           caregiver.Type `json:"role"`
	TokenHash      string         `json:"-"`
	Status         Status         `json:"status"`
	ResendCount    int            `json:"resend_count"`
	ExpiresAt      time.Time      `json:"expires_at"`
	InvitedBy      uuid.UUID      `json:"invited_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"-"`
}

// Expired reports whether the invite can no longer be accepted at now.
func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

const tokenBytes = 32

// NewToken returns a random opaque token and the hash to persist for it.
func NewToken() (raw, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate invitation token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// HashToken is the lookup key stored for raw.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
