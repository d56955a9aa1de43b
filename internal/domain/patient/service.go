package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/db"
	"github.com/medipt/medipt/pkg/civil"
)

// LatestCount is how many patients the latest listings return.
const LatestCount = 10

// medicalIDAttempts bounds the search for an unused medical id.
const medicalIDAttempts = 32

const picturePrefix = "patient_profile_pictures"

// Mailer queues the patient welcome email. It is satisfied by
// *notification.Dispatcher.
type Mailer interface {
	SendPatientWelcome(ctx context.Context, to, name, organization, medicalID string) error
}

// CaregiverLookup resolves a caregiver within one organization. It is
// satisfied by *caregiver.Service.
type CaregiverLookup interface {
	InOrganization(ctx context.Context, orgID, id uuid.UUID) (*caregiver.Caregiver, error)
}

type Service struct {
	repo       Repository
	diagnoses  DiagnosisRepository
	users      account.UserRepository
	tenants    account.TenantDirectory
	caregivers CaregiverLookup
	tx         db.TxRunner
	blobs      blobstore.Store
	mailer     Mailer
	newSeed    func() uuid.UUID
	logger     zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithSeedSource replaces the uuid source medical ids are derived from.
func WithSeedSource(fn func() uuid.UUID) Option { return func(s *Service) { s.newSeed = fn } }

func NewService(repo Repository, diagnoses DiagnosisRepository, users account.UserRepository,
	tenants account.TenantDirectory, caregivers CaregiverLookup, tx db.TxRunner, blobs blobstore.Store,
	mailer Mailer, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		diagnoses:  diagnoses,
		users:      users,
		tenants:    tenants,
		caregivers: caregivers,
		tx:         tx,
		blobs:      blobs,
		mailer:     mailer,
		newSeed:    uuid.New,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registration is what an organization supplies to enroll a patient.
type Registration struct {
	Email                string
	Password             string
	FirstName            string
	LastName             string
	DateOfBirth          *civil.Date
	MaritalStatus        *string
	Gender               *string
	PhoneNumber          *string
	EmergencyPhoneNumber *string
	Address              *string
	MedicalRecord        MedicalRecordInput
}

type MedicalRecordInput struct {
	BloodGroup string
	Genotype   string
	Weight     *decimal.Decimal
	Height     *decimal.Decimal
	Allergies  *string
}

// Register creates the patient's user, profile and medical record in one
// transaction, then queues the welcome email. A queueing failure is returned
// alongside the committed patient.
func (s *Service) Register(ctx context.Context, actor auth.Actor, reg Registration) (*Patient, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return nil, err
	}
	fields := fieldErrors{}
	fields.numeric("medical_record.weight", reg.MedicalRecord.Weight, weightRule)
	fields.numeric("medical_record.height", reg.MedicalRecord.Height, heightRule)
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	email := account.NormalizeEmail(reg.Email)
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrEmailTaken
	}
	u, err := account.NewUser(email, reg.Password, auth.RolePatient)
	if err != nil {
		return nil, err
	}
	u.IsActive, u.IsVerified = true, true

	tenant, err := s.tenants.Tenant(ctx, org.OrganizationID)
	if err != nil {
		return nil, err
	}

	p := &Patient{
		ID:                   uuid.New(),
		OrganizationID:       org.OrganizationID,
		Email:                email,
		FirstName:            reg.FirstName,
		LastName:             reg.LastName,
		DateOfBirth:          reg.DateOfBirth,
		MaritalStatus:        reg.MaritalStatus,
		Gender:               reg.Gender,
		PhoneNumber:          reg.PhoneNumber,
		EmergencyPhoneNumber: reg.EmergencyPhoneNumber,
		Address:              reg.Address,
		Active:               true,
		Verified:             true,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		p.UserID = u.ID
		medicalID, err := s.allocateMedicalID(ctx, tenant.Acronym)
		if err != nil {
			return err
		}
		p.MedicalID = medicalID
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		rec := &MedicalRecord{
			PatientID:  p.ID,
			BloodGroup: reg.MedicalRecord.BloodGroup,
			Genotype:   reg.MedicalRecord.Genotype,
			Weight:     nullDecimal(reg.MedicalRecord.Weight),
			Height:     nullDecimal(reg.MedicalRecord.Height),
			Allergies:  reg.MedicalRecord.Allergies,
		}
		if err := s.repo.SaveMedicalRecord(ctx, rec); err != nil {
			return err
		}
		p.MedicalRecord = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("medical_id", p.MedicalID).
		Str("organization_id", p.OrganizationID.String()).
		Msg("patient registered")

	name := p.FirstName + " " + p.LastName
	if err := s.mailer.SendPatientWelcome(ctx, p.Email, name, tenant.Name, p.MedicalID); err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("failed to queue patient welcome email")
		return p, apperr.NotificationFailed(err)
	}
	return p, nil
}

func (s *Service) allocateMedicalID(ctx context.Context, acronym string) (string, error) {
	for i := 0; i < medicalIDAttempts; i++ {
		id := MedicalID(acronym, s.newSeed())
		taken, err := s.repo.MedicalIDExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", apperr.New(apperr.KindDependency, apperr.CodeMedicalIDExhausted, "could not allocate a unique medical id")
}

// List returns the organization's patients. Without explicit flags only
// active, verified patients are listed.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter) ([]*Patient, int, error) {
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

func (s *Service) Latest(ctx context.Context, actor auth.Actor, n int) ([]*Patient, error) {
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

// GetByMedicalID returns a patient with its medical record to staff of the
// patient's organization or to the patient themself.
func (s *Service) GetByMedicalID(ctx context.Context, actor auth.Actor, medicalID string) (*Patient, error) {
	p, err := s.visible(ctx, actor, medicalID)
	if err != nil {
		return nil, err
	}
	s.decorate(p)
	return p, nil
}

// visible loads a patient and hides it from actors outside its scope.
func (s *Service) visible(ctx context.Context, actor auth.Actor, medicalID string) (*Patient, error) {
	p, err := s.repo.GetByMedicalID(ctx, medicalID)
	if err != nil {
		return nil, err
	}
	scope := auth.PatientScope{PatientUserID: p.UserID, OrganizationID: p.OrganizationID}
	if err := auth.CanUpdatePatientRegistration(actor, scope); err != nil {
		return nil, apperr.NotFound("patient")
	}
	return p, nil
}

type RegistrationPatch struct {
	FirstName            *string
	LastName             *string
	DateOfBirth          *civil.Date
	MaritalStatus        *string
	Gender               *string
	PhoneNumber          *string
	EmergencyPhoneNumber *string
	Address              *string
	MedicalRecord        *MedicalRecordPatch
}

type MedicalRecordPatch struct {
	BloodGroup *string
	Genotype   *string
	Weight     *decimal.Decimal
	Height     *decimal.Decimal
	Allergies  *string
}

// UpdateRegistration patches demographics and the medical record. Absent
// fields keep their values; the medical id cannot change.
func (s *Service) UpdateRegistration(ctx context.Context, actor auth.Actor, medicalID string, patch RegistrationPatch) (*Patient, error) {
	p, err := s.visible(ctx, actor, medicalID)
	if err != nil {
		return nil, err
	}

	setString(&p.FirstName, patch.FirstName)
	setString(&p.LastName, patch.LastName)
	if patch.DateOfBirth != nil {
		p.DateOfBirth = patch.DateOfBirth
	}
	setOptional(&p.MaritalStatus, patch.MaritalStatus)
	setOptional(&p.Gender, patch.Gender)
	setOptional(&p.PhoneNumber, patch.PhoneNumber)
	setOptional(&p.EmergencyPhoneNumber, patch.EmergencyPhoneNumber)
	setOptional(&p.Address, patch.Address)

	var rec *MedicalRecord
	if mp := patch.MedicalRecord; mp != nil {
		fields := fieldErrors{}
		fields.numeric("medical_record.weight", mp.Weight, weightRule)
		fields.numeric("medical_record.height", mp.Height, heightRule)

		rec = p.MedicalRecord
		if rec == nil {
			rec = &MedicalRecord{PatientID: p.ID}
		}
		setString(&rec.BloodGroup, mp.BloodGroup)
		setString(&rec.Genotype, mp.Genotype)
		if mp.Weight != nil {
			rec.Weight = nullDecimal(mp.Weight)
		}
		if mp.Height != nil {
			rec.Height = nullDecimal(mp.Height)
		}
		setOptional(&rec.Allergies, mp.Allergies)
		if rec.BloodGroup == "" {
			fields["medical_record.blood_group"] = "this field is required"
		}
		if rec.Genotype == "" {
			fields["medical_record.genotype"] = "this field is required"
		}
		if len(fields) > 0 {
			return nil, apperr.ValidationFields(fields)
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		if rec != nil {
			return s.repo.SaveMedicalRecord(ctx, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		p.MedicalRecord = rec
	}
	s.logger.Info().Str("medical_id", p.MedicalID).Msg("patient registration updated")
	s.decorate(p)
	return p, nil
}

// ToggleStatus activates or deactivates a patient's account and returns the
// new state.
func (s *Service) ToggleStatus(ctx context.Context, actor auth.Actor, id uuid.UUID) (bool, error) {
	org, err := auth.RequireOrganization(actor)
	if err != nil {
		return false, err
	}
	active, err := s.repo.ToggleActive(ctx, org.OrganizationID, id)
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("patient_id", id.String()).Bool("active", active).Msg("patient status toggled")
	return active, nil
}

// UploadPicture replaces a patient's profile picture. The same actors that
// may update the registration may change the picture.
func (s *Service) UploadPicture(ctx context.Context, actor auth.Actor, medicalID string, img blobstore.Image) (*Patient, error) {
	p, err := s.visible(ctx, actor, medicalID)
	if err != nil {
		return nil, err
	}
	key, err := blobstore.SaveImage(ctx, s.blobs, picturePrefix, p.ID, img)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPicture(ctx, p.ID, key); err != nil {
		return nil, err
	}
	if old := p.ProfilePictureKey; old != nil && *old != "" {
		if err := s.blobs.Delete(ctx, *old); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", *old).Msg("failed to delete old patient picture")
		}
	}
	p.ProfilePictureKey = &key
	s.decorate(p)
	return p, nil
}

// Counts returns the dashboard statistics of one organization.
func (s *Service) Counts(ctx context.Context, orgID uuid.UUID) (Counts, error) {
	return s.repo.Counts(ctx, orgID)
}

func (s *Service) decorate(items ...*Patient) {
	for _, p := range items {
		p.ProfilePicture = ""
		if p.ProfilePictureKey != nil {
			p.ProfilePicture = s.blobs.URL(*p.ProfilePictureKey)
		}
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setOptional(dst **string, v *string) {
	if v != nil {
		cp := *v
		*dst = &cp
	}
}
