package invite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/db"
	"github.com/medipt/medipt/pkg/civil"
)

// Mailer queues the invitation email. It is satisfied by
// *notification.Dispatcher.
type Mailer interface {
	SendInvitation(ctx context.Context, to, organization, role, token string, expiresAt time.Time) error
}

// Enroller stores a new caregiver and assigns its staff number. It is
// satisfied by *caregiver.Service.
type Enroller interface {
	Enroll(ctx context.Context, acronym string, cg *caregiver.Caregiver) error
}

// Outcomes reported to the invitation observer.
const (
	OutcomeSent     = "sent"
	OutcomeResent   = "resent"
	OutcomeAccepted = "accepted"
	OutcomeExpired  = "expired"
	OutcomeRevoked  = "revoked"
)

type Config struct {
	Expiry     time.Duration
	MaxResends int
}

func DefaultConfig() Config {
	return Config{Expiry: 7 * 24 * time.Hour, MaxResends: 3}
}

type Service struct {
	repo      Repository
	users     account.UserRepository
	tenants   account.TenantDirectory
	enroller  Enroller
	tx        db.TxRunner
	mailer    Mailer
	cfg       Config
	now       func() time.Time
	logger    zerolog.Logger
	onOutcome func(outcome string)
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithObserver registers a callback invoked with each invitation outcome.
func WithObserver(fn func(outcome string)) Option {
	return func(s *Service) { s.onOutcome = fn }
}

func NewService(repo Repository, users account.UserRepository, tenants account.TenantDirectory, enroller Enroller,
	tx db.TxRunner, mailer Mailer, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		users:     users,
		tenants:   tenants,
		enroller:  enroller,
		tx:        tx,
		mailer:    mailer,
		cfg:       cfg,
		now:       time.Now,
		logger:    zerolog.Nop(),
		onOutcome: func(string) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Invite creates an invitation for email, or re-issues an expired one. The
// returned error may be a notification failure alongside a committed invite.
func (s *Service) Invite(ctx context.Context, actor auth.Actor, email string, role caregiver.Type) (*Invite, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.ValidationFields(map[string]string{"role": "is not a valid caregiver type"})
	}
	email = account.NormalizeEmail(email)

	tenant, err := s.tenants.Tenant(ctx, org.OrganizationID)
	if err != nil {
		return nil, err
	}

	var (
		inv     *Invite
		raw     string
		outcome string
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		tok, hash, err := NewToken()
		if err != nil {
			return err
		}
		raw = tok
		now := s.now()

		existing, err := s.repo.GetForUpdate(ctx, org.OrganizationID, email)
		switch {
		case errors.Is(err, apperr.ErrInvitationNotFound):
			inv = &Invite{
				ID:             uuid.New(),
				OrganizationID: org.OrganizationID,
				Email:          email,
				Role:           role,
				TokenHash:      hash,
				Status:         StatusPending,
				ExpiresAt:      now.Add(s.cfg.Expiry),
				InvitedBy:      org.User,
			}
			outcome = OutcomeSent
			return s.repo.Create(ctx, inv)
		case err != nil:
			return err
		}

		switch {
		case existing.Status == StatusAccepted:
			return apperr.ErrAlreadyAccepted
		case existing.ResendCount >= s.cfg.MaxResends:
			return apperr.ErrMaxResendsExceeded
		case !existing.Expired(now):
			return apperr.ErrActiveInvitation
		}
		existing.TokenHash = hash
		existing.ResendCount++
		existing.Status = StatusPending
		existing.ExpiresAt = now.Add(s.cfg.Expiry)
		existing.InvitedBy = org.User
		inv = existing
		outcome = OutcomeResent
		return s.repo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.onOutcome(outcome)
	s.logger.Info().
		Str("email", inv.Email).
		Str("role", string(inv.Role)).
		Str("organization_id", inv.OrganizationID.String()).
		Str("invited_by", org.User.String()).
		Int("resend_count", inv.ResendCount).
		Msg("invitation " + outcome)

	if err := s.mailer.SendInvitation(ctx, inv.Email, tenant.Name, string(inv.Role), raw, inv.ExpiresAt); err != nil {
		s.logger.Error().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to queue invitation email")
		return inv, apperr.NotificationFailed(err)
	}
	return inv, nil
}

// Registration is what the invitee supplies when accepting.
type Registration struct {
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
	DateOfBirth     *civil.Date
	Gender          *string
	MaritalStatus   *string
	PhoneNumber     *string
	Address         *string
}

// Acceptance describes the account created by accepting an invitation.
type Acceptance struct {
	UserID       uuid.UUID            `json:"user_id"`
	Email        string               `json:"email"`
	Organization string               `json:"organization"`
	Caregiver    *caregiver.Caregiver `json:"-"`
}

// Accept redeems an invitation token, creating the caregiver's user and
// profile in one transaction. An expired invitation is marked expired even
// though the call fails.
func (s *Service) Accept(ctx context.Context, raw string, reg Registration) (*Acceptance, error) {
	if reg.Password != reg.ConfirmPassword {
		return nil, apperr.ErrPasswordMismatch
	}

	var (
		res     *Acceptance
		expired bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetByTokenHashForUpdate(ctx, HashToken(raw))
		if err != nil {
			return err
		}
		if inv.Expired(s.now()) {
			if inv.Status == StatusPending {
				inv.Status = StatusExpired
				if err := s.repo.Update(ctx, inv); err != nil {
					return err
				}
			}
			expired = true
			return nil
		}
		if inv.Status != StatusPending {
			return apperr.ErrAlreadyAccepted
		}

		tenant, err := s.tenants.Tenant(ctx, inv.OrganizationID)
		if err != nil {
			return err
		}
		u, err := account.NewUser(inv.Email, reg.Password, auth.RoleCaregiver)
		if err != nil {
			return err
		}
		u.IsActive, u.IsVerified, u.IsInvited = true, true, true
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}

		cg := &caregiver.Caregiver{
			ID:             uuid.New(),
			UserID:         u.ID,
			OrganizationID: inv.OrganizationID,
			Email:          u.Email,
			FirstName:      reg.FirstName,
			LastName:       reg.LastName,
			CaregiverType:  inv.Role,
			DateOfBirth:    reg.DateOfBirth,
			Gender:         reg.Gender,
			MaritalStatus:  reg.MaritalStatus,
			PhoneNumber:    reg.PhoneNumber,
			Address:        reg.Address,
			Active:         true,
			Verified:       true,
		}
		if err := s.enroller.Enroll(ctx, tenant.Acronym, cg); err != nil {
			return err
		}

		inv.Status = StatusAccepted
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}
		res = &Acceptance{UserID: u.ID, Email: u.Email, Organization: tenant.Name, Caregiver: cg}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.onOutcome(OutcomeExpired)
		return nil, apperr.ErrInvitationExpired
	}

	s.onOutcome(OutcomeAccepted)
	s.logger.Info().
		Str("user_id", res.UserID.String()).
		Str("staff_number", res.Caregiver.StaffNumber).
		Msg("invitation accepted")
	return res, nil
}

type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// List returns the acting organization's invitations, newest first.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]*Invite, int, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, 0, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, apperr.ValidationFields(map[string]string{"status": "must be one of: pending accepted expired"})
	}
	return s.repo.List(ctx, org.OrganizationID, f.Status, f.Limit, f.Offset)
}

// Revoke withdraws an invitation that has not been accepted.
func (s *Service) Revoke(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return err
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetByID(ctx, org.OrganizationID, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusAccepted {
			return apperr.ErrAlreadyAccepted
		}
		return s.repo.SoftDelete(ctx, org.OrganizationID, id, s.now())
	})
	if err != nil {
		return err
	}
	s.onOutcome(OutcomeRevoked)
	s.logger.Info().Str("invitation_id", id.String()).Msg("invitation revoked")
	return nil
}
