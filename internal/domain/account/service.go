package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/token"
)

// Mailer queues account emails. It is satisfied by *notification.Dispatcher.
type Mailer interface {
	SendActivation(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

// DisplayNamer resolves the name used to greet a user in emails.
type DisplayNamer interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

type TokenTTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	Activation    time.Duration
	PasswordReset time.Duration
}

// DefaultTokenTTLs mirrors the configuration defaults.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{
		Access:        5000 * time.Minute,
		Refresh:       7 * 24 * time.Hour,
		Activation:    24 * time.Hour,
		PasswordReset: time.Hour,
	}
}

// Login outcomes reported to the login observer.
const (
	LoginSucceeded          = "succeeded"
	LoginInvalidCredentials = "invalid_credentials"
	LoginNotActivated       = "not_activated"
	LoginNotVerified        = "not_verified"
)

type Service struct {
	users       UserRepository
	tokens      *token.Service
	revocations auth.RevocationStore
	mailer      Mailer
	ttl         TokenTTLs
	names       DisplayNamer
	logger      zerolog.Logger
	onLogin     func(outcome string)

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithLoginObserver registers a callback invoked with each login outcome.
func WithLoginObserver(fn func(outcome string)) Option {
	return func(s *Service) { s.onLogin = fn }
}

func WithDisplayNames(n DisplayNamer) Option { return func(s *Service) { s.names = n } }

func NewService(users UserRepository, tokens *token.Service, revocations auth.RevocationStore, mailer Mailer, ttl TokenTTLs, opts ...Option) *Service {
	s := &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		mailer:      mailer,
		ttl:         ttl,
		logger:      zerolog.Nop(),
		onLogin:     func(string) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewUser checks pw against the password policy and returns an unsaved user
// carrying its hash.
func NewUser(email, pw string, role auth.Role) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidatePassword(pw, email); err != nil {
		return nil, err
	}
	hash, err := HashPassword(pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &User{ID: uuid.New(), Email: email, PasswordHash: hash, Role: role}, nil
}

// SendActivation issues an activation token for u and queues the email.
func (s *Service) SendActivation(ctx context.Context, u *User, name string) error {
	tok, err := s.tokens.Issue(u.ID, token.PurposeActivation, s.ttl.Activation)
	if err != nil {
		return err
	}
	if name == "" {
		name = s.displayName(ctx, u)
	}
	return s.mailer.SendActivation(ctx, u.Email, name, tok)
}

func (s *Service) displayName(ctx context.Context, u *User) string {
	if s.names != nil {
		if name, err := s.names.DisplayName(ctx, u.ID); err == nil && name != "" {
			return name
		}
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Activation is the result of following an activation link.
type Activation struct {
	AlreadyActive bool      `json:"already_active"`
	Role          auth.Role `json:"role"`
}

// Activate verifies an activation token and marks its user active and
// verified. Activating an already active account succeeds without writing.
func (s *Service) Activate(ctx context.Context, raw string) (Activation, error) {
	claims, err := s.tokens.Verify(raw, token.PurposeActivation)
	if err != nil {
		return Activation{}, tokenError(err)
	}
	u, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return Activation{}, err
	}
	if u.IsActive {
		return Activation{AlreadyActive: true, Role: u.Role}, nil
	}
	if err := s.users.Activate(ctx, u.ID); err != nil {
		return Activation{}, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("account activated")
	return Activation{Role: u.Role}, nil
}

// ResendActivation queues a fresh activation email. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.IsActive && u.IsVerified {
		return apperr.ErrAlreadyActive
	}
	if err := s.SendActivation(ctx, u, ""); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("failed to queue activation email")
		return apperr.NotificationFailed(err)
	}
	return nil
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Tokens token.Pair `json:"tokens"`
	User   Summary    `json:"user"`
}

// Login checks credentials and then account state, in that order, so an
// attacker learns nothing about inactive accounts without the password.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperr.ErrUserNotFound) {
		return nil, err
	}
	if u == nil {
		CheckPassword(s.dummy(), password)
		s.onLogin(LoginInvalidCredentials)
		return nil, apperr.ErrInvalidCredentials
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.onLogin(LoginInvalidCredentials)
		return nil, apperr.ErrInvalidCredentials
	}
	if !u.IsActive {
		s.onLogin(LoginNotActivated)
		return nil, apperr.ErrNotActivated
	}
	if !u.IsVerified {
		s.onLogin(LoginNotVerified)
		return nil, apperr.ErrNotVerified
	}

	actor, err := s.users.ResolveActor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(u.ID, string(u.Role), s.ttl.Access, s.ttl.Refresh)
	if err != nil {
		return nil, err
	}
	s.onLogin(LoginSucceeded)
	return &LoginResult{Tokens: pair, User: summarize(u, actor)}, nil
}

// dummy is compared against when the email is unknown so both failure paths
// cost one bcrypt comparison.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword(uuid.NewString())
	})
	return s.dummyHash
}

// Logout revokes the refresh token and, when supplied, the access token.
func (s *Service) Logout(ctx context.Context, refresh, access string) error {
	if _, err := s.revokeRefresh(ctx, refresh); err != nil {
		return err
	}
	if access == "" {
		return nil
	}
	if claims, err := s.tokens.Verify(access, token.PurposeAccess); err == nil {
		if _, err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	return nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair issued. A token can be rotated at most once.
func (s *Service) Refresh(ctx context.Context, refresh string) (token.Pair, error) {
	claims, err := s.revokeRefresh(ctx, refresh)
	if err != nil {
		return token.Pair{}, err
	}
	u, err := s.userFromClaims(ctx, claims)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return token.Pair{}, apperr.ErrInvalidRefreshToken
		}
		return token.Pair{}, err
	}
	if !u.IsActive {
		return token.Pair{}, apperr.ErrNotActivated
	}
	return s.tokens.IssuePair(u.ID, string(u.Role), s.ttl.Access, s.ttl.Refresh)
}

func (s *Service) revokeRefresh(ctx context.Context, raw string) (*token.Claims, error) {
	if raw == "" {
		return nil, apperr.ErrInvalidRefreshToken
	}
	claims, err := s.tokens.Verify(raw, token.PurposeRefresh)
	if err != nil {
		return nil, apperr.ErrInvalidRefreshToken.Wrap(err)
	}
	fresh, err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !fresh {
		return nil, apperr.ErrInvalidRefreshToken
	}
	return claims, nil
}

// RequestPasswordReset queues a reset link. Unknown addresses succeed
// silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrUserNotFound) {
		s.logger.Debug().Msg("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	tok, err := s.tokens.Issue(u.ID, token.PurposePasswordReset, s.ttl.PasswordReset)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, tok); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("failed to queue password reset email")
		return apperr.NotificationFailed(err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token.
func (s *Service) ConfirmPasswordReset(ctx context.Context, raw, password, confirm string) error {
	if password != confirm {
		return apperr.ErrPasswordMismatch
	}
	if err := ValidatePassword(password, ""); err != nil {
		return err
	}
	claims, err := s.tokens.Verify(raw, token.PurposePasswordReset)
	if err != nil {
		return tokenError(err)
	}
	u, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password, u.Email); err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, password)
}

// ChangePassword updates the actor's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actor auth.Actor, current, password, confirm string) error {
	u, err := s.users.GetByID(ctx, actor.UserID())
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, current) {
		return apperr.ErrWrongCurrentPassword
	}
	if password != confirm {
		return apperr.ErrPasswordMismatch
	}
	if err := ValidatePassword(password, u.Email); err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, password)
}

func (s *Service) setPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.SetPassword(ctx, id, hash)
}

// CreateSuperuser creates an active platform staff account with no tenant.
func (s *Service) CreateSuperuser(ctx context.Context, email, password string) (*User, error) {
	u, err := NewUser(email, password, auth.RoleNone)
	if err != nil {
		return nil, err
	}
	u.IsActive, u.IsVerified, u.IsStaff, u.IsSuperuser = true, true, true, true
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("email", u.Email).Msg("superuser created")
	return u, nil
}

func (s *Service) userFromClaims(ctx context.Context, claims *token.Claims) (*User, error) {
	id, err := claims.SubjectID()
	if err != nil {
		return nil, apperr.ErrTokenMalformed.Wrap(err)
	}
	return s.users.GetByID(ctx, id)
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return apperr.ErrTokenExpired.Wrap(err)
	case errors.Is(err, token.ErrInvalidPurpose):
		return apperr.ErrTokenInvalidPurpose.Wrap(err)
	default:
		return apperr.ErrTokenMalformed.Wrap(err)
	}
}
