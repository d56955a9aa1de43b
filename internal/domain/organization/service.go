package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/domain/patient"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/db"
)

const logoPrefix = "organization_logos"

// Activator sends the activation email of a new account. It is satisfied by
// *account.Service.
type Activator interface {
	SendActivation(ctx context.Context, u *account.User, name string) error
}

// CaregiverStats is the slice of *caregiver.Service the dashboard reads.
type CaregiverStats interface {
	Counts(ctx context.Context, orgID uuid.UUID) (caregiver.Counts, error)
	Latest(ctx context.Context, actor auth.Actor, n int) ([]*caregiver.Caregiver, error)
}

// PatientStats is the slice of *patient.Service the dashboard reads.
type PatientStats interface {
	Counts(ctx context.Context, orgID uuid.UUID) (patient.Counts, error)
	Latest(ctx context.Context, actor auth.Actor, n int) ([]*patient.Patient, error)
}

type Service struct {
	repo       Repository
	users      account.UserRepository
	tx         db.TxRunner
	activator  Activator
	caregivers CaregiverStats
	patients   PatientStats
	blobs      blobstore.Store
	logger     zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, users account.UserRepository, tx db.TxRunner, activator Activator,
	caregivers CaregiverStats, patients PatientStats, blobs blobstore.Store, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		users:      users,
		tx:         tx,
		activator:  activator,
		caregivers: caregivers,
		patients:   patients,
		blobs:      blobs,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Signup struct {
	Name        string
	Acronym     string
	Email       string
	Password    string
	Address     *string
	PhoneNumber *string
}

// Signup creates an inactive organization account and sends its activation
// link. Email uniqueness is checked before the acronym. A failure to queue
// the email is returned alongside the committed organization.
func (s *Service) Signup(ctx context.Context, in Signup) (*Organization, error) {
	email := account.NormalizeEmail(in.Email)
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrEmailTaken
	}
	acronym := NormalizeAcronym(in.Acronym)
	taken, err = s.repo.AcronymExists(ctx, acronym)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrAcronymTaken
	}

	u, err := account.NewUser(email, in.Password, auth.RoleOrganization)
	if err != nil {
		return nil, err
	}
	o := &Organization{
		ID:          uuid.New(),
		Email:       email,
		Name:        NormalizeName(in.Name),
		Acronym:     acronym,
		Address:     in.Address,
		PhoneNumber: in.PhoneNumber,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		o.UserID = u.ID
		return s.repo.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("organization_id", o.ID.String()).
		Str("acronym", o.Acronym).
		Msg("organization signed up")

	if err := s.activator.SendActivation(ctx, u, o.Name); err != nil {
		s.logger.Error().Err(err).Str("organization_id", o.ID.String()).Msg("failed to queue activation email")
		return o, apperr.NotificationFailed(err)
	}
	return o, nil
}

// Profile returns an organization to its owner.
func (s *Service) Profile(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Organization, error) {
	o, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	s.decorate(o)
	return o, nil
}

func (s *Service) owned(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Organization, error) {
	if _, err := auth.RequireOrganization(actor); err != nil {
		return nil, err
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := auth.RequireOrganizationOwner(actor, o.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

type ProfilePatch struct {
	Name        *string
	Address     *string
	PhoneNumber *string
}

func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, id uuid.UUID, patch ProfilePatch) (*Organization, error) {
	o, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		o.Name = NormalizeName(*patch.Name)
	}
	if patch.Address != nil {
		o.Address = patch.Address
	}
	if patch.PhoneNumber != nil {
		o.PhoneNumber = patch.PhoneNumber
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info().Str("organization_id", o.ID.String()).Msg("organization profile updated")
	s.decorate(o)
	return o, nil
}

// UploadLogo replaces the logo of the actor's organization.
func (s *Service) UploadLogo(ctx context.Context, actor auth.Actor, img blobstore.Image) (*Organization, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.GetByID(ctx, org.OrganizationID)
	if err != nil {
		return nil, err
	}
	key, err := blobstore.SaveImage(ctx, s.blobs, logoPrefix, o.ID, img)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetLogo(ctx, o.ID, key); err != nil {
		return nil, err
	}
	if old := o.LogoKey; old != nil && *old != "" {
		if err := s.blobs.Delete(ctx, *old); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", *old).Msg("failed to delete old organization logo")
		}
	}
	o.LogoKey = &key
	s.decorate(o)
	return o, nil
}

func (s *Service) Dashboard(ctx context.Context, actor auth.Actor) (*Dashboard, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, err
	}
	var d Dashboard
	if d.Statistics.Caregivers, err = s.caregivers.Counts(ctx, org.OrganizationID); err != nil {
		return nil, err
	}
	if d.Statistics.Patients, err = s.patients.Counts(ctx, org.OrganizationID); err != nil {
		return nil, err
	}
	if d.LatestCaregivers, err = s.caregivers.Latest(ctx, actor, caregiver.LatestCount); err != nil {
		return nil, err
	}
	if d.LatestPatients, err = s.patients.Latest(ctx, actor, patient.LatestCount); err != nil {
		return nil, err
	}
	if d.LatestCaregivers == nil {
		d.LatestCaregivers = []*caregiver.Caregiver{}
	}
	if d.LatestPatients == nil {
		d.LatestPatients = []*patient.Patient{}
	}
	return &d, nil
}

func (s *Service) decorate(o *Organization) {
	o.Logo = ""
	if o.LogoKey != nil {
		o.Logo = s.blobs.URL(*o.LogoKey)
	}
}

// Directory exposes organizations to the other domains: tenant lookups for
// generated identifiers and display names for account emails.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) Tenant(ctx context.Context, id uuid.UUID) (*account.Tenant, error) {
	o, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &account.Tenant{ID: o.ID, UserID: o.UserID, Name: o.Name, Acronym: o.Acronym}, nil
}

// DisplayName returns the organization name of an organization user and ""
// for other users.
func (d *Directory) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	o, err := d.repo.GetByUserID(ctx, userID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return o.Name, nil
}

var (
	_ account.TenantDirectory = (*Directory)(nil)
	_ account.DisplayNamer    = (*Directory)(nil)
)
