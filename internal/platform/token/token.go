// Package token issues and verifies signed, time-boxed tokens. Every token is
// an HS256 JWT carrying a subject, issue time, expiry, a unique id and the
// purpose it was minted for; a token minted for one purpose is rejected by all
// others.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeActivation    Purpose = "activation"
	PurposePasswordReset Purpose = "password_reset"
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
)

var (
	ErrExpired        = errors.New("token expired")
	ErrMalformed      = errors.New("token malformed")
	ErrInvalidPurpose = errors.New("token issued for a different purpose")
)

const minKeyLen = 16

type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
	Role    string  `json:"role,omitempty"`
	// ExpiresAtNano is the exact expiry. The registered exp claim only holds
	// whole seconds and is rounded up from this value.
	ExpiresAtNano int64 `json:"exp_ns,omitempty"`
}

// Expiry returns the exact expiry, falling back to the exp claim for tokens
// that do not carry exp_ns.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAtNano > 0 {
		return time.Unix(0, c.ExpiresAtNano).UTC()
	}
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// SubjectID parses the subject as a UUID.
func (c *Claims) SubjectID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrMalformed
	}
	return id, nil
}

// Pair is an access/refresh token pair returned by a successful login.
type Pair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Service struct {
	key    []byte
	issuer string
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

func NewService(key []byte, opts ...Option) (*Service, error) {
	if len(key) < minKeyLen {
		return nil, fmt.Errorf("token signing key must be at least %d bytes", minKeyLen)
	}
	s := &Service{key: key, issuer: "medipt", now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue signs a token for subject valid for ttl.
func (s *Service) Issue(subject uuid.UUID, purpose Purpose, ttl time.Duration) (string, error) {
	tok, _, err := s.issue(subject, purpose, "", ttl)
	return tok, err
}

// IssuePair signs an access token carrying role and a refresh token.
func (s *Service) IssuePair(subject uuid.UUID, role string, accessTTL, refreshTTL time.Duration) (Pair, error) {
	access, ac, err := s.issue(subject, PurposeAccess, role, accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, rc, err := s.issue(subject, PurposeRefresh, role, refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  ac.Expiry(),
		RefreshExpiresAt: rc.Expiry(),
	}, nil
}

func (s *Service) issue(subject uuid.UUID, purpose Purpose, role string, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()
	expiry := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry.Add(time.Second - time.Nanosecond)),
		},
		Purpose:       purpose,
		Role:          role,
		ExpiresAtNano: expiry.UnixNano(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, claims, nil
}

// Verify checks the signature, then the purpose, then the expiry. It returns
// ErrMalformed, ErrInvalidPurpose or ErrExpired respectively.
func (s *Service) Verify(raw string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrMalformed
	}
	if claims.Issuer != s.issuer || claims.ExpiresAt == nil || claims.Subject == "" {
		return nil, ErrMalformed
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidPurpose
	}
	if !s.now().Before(claims.Expiry()) {
		return nil, ErrExpired
	}
	return claims, nil
}
