package caregiver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
)

// LatestCount is how many caregivers the latest listings return.
const LatestCount = 10

const picturePrefix = "caregiver_profile_pictures"

type Service struct {
	repo   Repository
	blobs  blobstore.Store
	logger zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, blobs blobstore.Store, opts ...Option) *Service {
	s := &Service{repo: repo, blobs: blobs, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enroll assigns the next staff number for the caregiver's type and stores
// it. It is called inside the invite acceptance transaction.
func (s *Service) Enroll(ctx context.Context, acronym string, cg *Caregiver) error {
	if !cg.CaregiverType.Valid() {
		return fmt.Errorf("enroll caregiver: unknown type %q", cg.CaregiverType)
	}
	seq, err := s.repo.NextStaffSequence(ctx, cg.OrganizationID, cg.CaregiverType)
	if err != nil {
		return err
	}
	cg.StaffNumber = StaffNumber(acronym, cg.CaregiverType, seq)
	if err := s.repo.Create(ctx, cg); err != nil {
		return err
	}
	s.decorate(cg)
	return nil
}

// List returns the organization's caregivers. Without explicit flags only
// active, verified caregivers are listed.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]*Caregiver, int, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, 0, err
	}
	yes := true
	if f.Active == nil {
		f.Active = &yes
	}
	if f.Verified == nil {
		f.Verified = &yes
	}
	items, total, err := s.repo.List(ctx, org.OrganizationID, f)
	if err != nil {
		return nil, 0, err
	}
	s.decorate(items...)
	return items, total, nil
}

func (s *Service) Latest(ctx context.Context, actor auth.Actor, n int) ([]*Caregiver, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Latest(ctx, org.OrganizationID, n)
	if err != nil {
		return nil, err
	}
	s.decorate(items...)
	return items, nil
}

// Basic lists id and display name of every active, verified caregiver in the
// actor's organization.
func (s *Service) Basic(ctx context.Context, actor auth.Actor) ([]Basic, error) {
	orgID, err := auth.RequireStaff(actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Basic(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]Basic, len(items))
	for i, cg := range items {
		out[i] = Basic{ID: cg.ID, CaregiverName: cg.FullNameWithRole()}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Caregiver, error) {
	orgID, err := auth.RequireStaff(actor)
	if err != nil {
		return nil, err
	}
	cg, err := s.repo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	s.decorate(cg)
	return cg, nil
}

// InOrganization loads a caregiver only if it belongs to orgID.
func (s *Service) InOrganization(ctx context.Context, orgID, id uuid.UUID) (*Caregiver, error) {
	return s.repo.GetByID(ctx, orgID, id)
}

func (s *Service) Me(ctx context.Context, actor auth.Actor) (*Caregiver, error) {
	cg, err := auth.RequireCaregiver(actor)
	if err != nil {
		return nil, err
	}
	out, err := s.repo.GetByID(ctx, cg.OrganizationID, cg.CaregiverID)
	if err != nil {
		return nil, err
	}
	s.decorate(out)
	return out, nil
}

// ToggleStatus activates or deactivates a caregiver's account and returns
// the new state.
func (s *Service) ToggleStatus(ctx context.Context, actor auth.Actor, id uuid.UUID) (bool, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return false, err
	}
	active, err := s.repo.ToggleActive(ctx, org.OrganizationID, id)
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("caregiver_id", id.String()).Bool("active", active).Msg("caregiver status toggled")
	return active, nil
}

// UploadPicture replaces the acting caregiver's profile picture.
func (s *Service) UploadPicture(ctx context.Context, actor auth.Actor, img blobstore.Image) (*Caregiver, error) {
	me, err := auth.RequireCaregiver(actor)
	if err != nil {
		return nil, err
	}
	cg, err := s.repo.GetByID(ctx, me.OrganizationID, me.CaregiverID)
	if err != nil {
		return nil, err
	}
	key, err := blobstore.SaveImage(ctx, s.blobs, picturePrefix, cg.ID, img)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPicture(ctx, cg.ID, key); err != nil {
		return nil, err
	}
	if old := cg.ProfilePictureKey; old != nil && *old != "" {
		if err := s.blobs.Delete(ctx, *old); err != nil {
			s.logger.Warn().Err(err).Str("key", *old).Msg("failed to delete old caregiver picture")
		}
	}
	cg.ProfilePictureKey = &key
	s.decorate(cg)
	return cg, nil
}

// Counts returns the dashboard statistics of one organization.
func (s *Service) Counts(ctx context.Context, orgID uuid.UUID) (Counts, error) {
	return s.repo.Counts(ctx, orgID)
}

func (s *Service) decorate(items ...*Caregiver) {
	for _, cg := range items {
		cg.ProfilePicture = ""
		if cg.ProfilePictureKey != nil {
			cg.ProfilePicture = s.blobs.URL(*cg.ProfilePictureKey)
		}
	}
}
