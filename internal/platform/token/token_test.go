package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(testKey, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, clock
}

func TestNewService_ShortKey(t *testing.T) {
	if _, err := NewService([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	subject := uuid.New()

	tok, err := svc.Issue(subject, PurposeActivation, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.Verify(tok, PurposeActivation)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, err := claims.SubjectID()
	if err != nil || got != subject {
		t.Errorf("subject = %v (%v), want %v", got, err, subject)
	}
	if claims.ID == "" {
		t.Error("expected a jti")
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	svc, clock := newTestService(t)
	subject := uuid.New()
	ttl := time.Hour
	start := clock.t

	tok, err := svc.Issue(subject, PurposePasswordReset, ttl)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.t = start.Add(ttl - time.Second)
	claims, err := svc.Verify(tok, PurposePasswordReset)
	if err != nil {
		t.Fatalf("Verify just before expiry: %v", err)
	}
	if id, _ := claims.SubjectID(); id != subject {
		t.Errorf("subject = %v, want %v", id, subject)
	}

	clock.t = start.Add(ttl)
	if _, err := svc.Verify(tok, PurposePasswordReset); !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify at expiry: got %v, want ErrExpired", err)
	}

	clock.t = start.Add(ttl + time.Second)
	if _, err := svc.Verify(tok, PurposePasswordReset); !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify after expiry: got %v, want ErrExpired", err)
	}
}

func TestVerify_SubSecondIssueTime(t *testing.T) {
	svc, clock := newTestService(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 700_000_000, time.UTC)
	clock.t = start
	ttl := time.Hour

	tok, err := svc.Issue(uuid.New(), PurposeActivation, ttl)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.t = start.Add(ttl - 200*time.Millisecond)
	if _, err := svc.Verify(tok, PurposeActivation); err != nil {
		t.Fatalf("Verify 200ms before expiry: %v", err)
	}

	clock.t = start.Add(ttl + 100*time.Millisecond)
	if _, err := svc.Verify(tok, PurposeActivation); !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify 100ms after expiry: got %v, want ErrExpired", err)
	}
}

func TestVerify_ExpClaimIsRoundedUp(t *testing.T) {
	svc, clock := newTestService(t)
	clock.t = time.Date(2025, 3, 1, 12, 0, 0, 700_000_000, time.UTC)

	tok, _ := svc.Issue(uuid.New(), PurposeActivation, time.Hour)
	claims, err := svc.Verify(tok, PurposeActivation)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := time.Date(2025, 3, 1, 13, 0, 1, 0, time.UTC)
	if !claims.ExpiresAt.Time.Equal(want) {
		t.Errorf("exp = %v, want %v", claims.ExpiresAt.Time, want)
	}
	if !claims.Expiry().Equal(clock.t.Add(time.Hour)) {
		t.Errorf("exact expiry = %v", claims.Expiry())
	}
}

func TestVerify_WrongPurpose(t *testing.T) {
	svc, _ := newTestService(t)
	tok, _ := svc.Issue(uuid.New(), PurposeRefresh, time.Hour)

	if _, err := svc.Verify(tok, PurposeActivation); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("got %v, want ErrInvalidPurpose", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	svc, _ := newTestService(t)
	tok, _ := svc.Issue(uuid.New(), PurposeActivation, time.Hour)

	other, _ := NewService([]byte("ffffffffffffffffffffffffffffffff"), WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	foreign, _ := other.Issue(uuid.New(), PurposeActivation, time.Hour)

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Purpose: PurposeActivation})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"garbage":     "not-a-token",
		"empty":       "",
		"tampered":    tampered,
		"foreign key": foreign,
		"alg none":    unsigned,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Verify(raw, PurposeActivation); !errors.Is(err, ErrMalformed) {
				t.Errorf("got %v, want ErrMalformed", err)
			}
		})
	}
}

func TestVerify_ExpiredButTamperedIsMalformed(t *testing.T) {
	svc, clock := newTestService(t)
	tok, _ := svc.Issue(uuid.New(), PurposeActivation, time.Minute)
	clock.t = clock.t.Add(time.Hour)

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("B", len(parts[2]))
	if _, err := svc.Verify(tampered, PurposeActivation); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestIssuePair(t *testing.T) {
	svc, clock := newTestService(t)
	subject := uuid.New()

	pair, err := svc.IssuePair(subject, "organization", 5000*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	access, err := svc.Verify(pair.Access, PurposeAccess)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if access.Role != "organization" {
		t.Errorf("role = %q", access.Role)
	}
	refresh, err := svc.Verify(pair.Refresh, PurposeRefresh)
	if err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
	if access.ID == refresh.ID {
		t.Error("access and refresh must have distinct ids")
	}
	if !pair.RefreshExpiresAt.Equal(clock.t.Add(7 * 24 * time.Hour)) {
		t.Errorf("refresh expiry = %v", pair.RefreshExpiresAt)
	}
	if _, err := svc.Verify(pair.Access, PurposeRefresh); !errors.Is(err, ErrInvalidPurpose) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
}

func TestIssue_NonPositiveTTL(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Issue(uuid.New(), PurposeActivation, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
