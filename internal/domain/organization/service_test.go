package organization

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/domain/patient"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
)

const testPassword = "Correct-Horse-42"

// -- Mock Repositories --

type mockOrgRepo struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*Organization
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{orgs: make(map[uuid.UUID]*Organization)}
}

func (m *mockOrgRepo) Create(_ context.Context, o *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Acronym == o.Acronym {
			return apperr.ErrAcronymTaken
		}
	}
	cp := *o
	m.orgs[o.ID] = &cp
	return nil
}

func (m *mockOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization")
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrgRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.UserID == userID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("organization")
}

func (m *mockOrgRepo) AcronymExists(_ context.Context, acronym string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if strings.EqualFold(o.Acronym, acronym) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrgRepo) Update(_ context.Context, o *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orgs[o.ID]
	if !ok {
		return apperr.NotFound("organization")
	}
	cur.Name, cur.Address, cur.PhoneNumber = o.Name, o.Address, o.PhoneNumber
	return nil
}

func (m *mockOrgRepo) SetLogo(_ context.Context, id uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return apperr.NotFound("organization")
	}
	o.LogoKey = &key
	return nil
}

func (m *mockOrgRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orgs)
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*account.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*account.User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *account.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.ErrEmailTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.ErrUserNotFound
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockUserRepo) SetPassword(context.Context, uuid.UUID, string) error { return nil }
func (m *mockUserRepo) Activate(context.Context, uuid.UUID) error          { return nil }

func (m *mockUserRepo) ResolveActor(context.Context, uuid.UUID) (auth.Actor, error) {
	return nil, apperr.ErrUserNotFound
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// rollbackTx undoes the user insert of a failed signup.
type rollbackTx struct {
	users *mockUserRepo
}

func (t *rollbackTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.users.mu.Lock()
	saved := make(map[uuid.UUID]*account.User, len(t.users.users))
	for id, u := range t.users.users {
		saved[id] = u
	}
	t.users.mu.Unlock()
	if err := fn(ctx); err != nil {
		t.users.mu.Lock()
		t.users.users = saved
		t.users.mu.Unlock()
		return err
	}
	return nil
}

type activation struct {
	email, name string
}

type mockActivator struct {
	sent []activation
	fail error
}

func (m *mockActivator) SendActivation(_ context.Context, u *account.User, name string) error {
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, activation{u.Email, name})
	return nil
}

type stubCaregivers struct {
	counts caregiver.Counts
	latest []*caregiver.Caregiver
}

func (s stubCaregivers) Counts(context.Context, uuid.UUID) (caregiver.Counts, error) { return s.counts, nil }

func (s stubCaregivers) Latest(_ context.Context, actor auth.Actor, _ int) ([]*caregiver.Caregiver, error) {
	if _, err := auth.RequireOrganization(actor); err != nil {
		return nil, err
	}
	return s.latest, nil
}

type stubPatients struct {
	counts patient.Counts
	latest []*patient.Patient
}

func (s stubPatients) Counts(context.Context, uuid.UUID) (patient.Counts, error) { return s.counts, nil }

func (s stubPatients) Latest(context.Context, auth.Actor, int) ([]*patient.Patient, error) {
	return s.latest, nil
}

// -- Test Env --

type testEnv struct {
	svc       *Service
	repo      *mockOrgRepo
	users     *mockUserRepo
	activator *mockActivator
	blobs     *blobstore.MemoryStore
}

func newTestEnv(t *testing.T, cg stubCaregivers, pt stubPatients) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      newMockOrgRepo(),
		users:     newMockUserRepo(),
		activator: &mockActivator{},
		blobs:     blobstore.NewMemoryStore("http://localhost:8000/media"),
	}
	env.svc = NewService(env.repo, env.users, &rollbackTx{users: env.users}, env.activator, cg, pt, env.blobs)
	return env
}

func signup(name, acronym, email string) Signup {
	return Signup{Name: name, Acronym: acronym, Email: email, Password: testPassword}
}

func (env *testEnv) signup(t *testing.T, acronym, email string) (*Organization, auth.OrganizationActor) {
	t.Helper()
	o, err := env.svc.Signup(context.Background(), signup("acme clinic", acronym, email))
	require.NoError(t, err)
	return o, auth.OrganizationActor{User: o.UserID, OrganizationID: o.ID}
}

// -- Tests --

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Acme General Hospital", NormalizeName("  acme   GENERAL hospital "))
	assert.Equal(t, "ACM2", NormalizeAcronym(" acm2 "))
}

func TestService_Signup(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	o, err := env.svc.Signup(context.Background(), signup("acme clinic", "acm", "Admin@Acme.test"))
	require.NoError(t, err)

	assert.Equal(t, "Acme Clinic", o.Name)
	assert.Equal(t, "ACM", o.Acronym)
	assert.Equal(t, "admin@acme.test", o.Email)

	u, err := env.users.GetByID(context.Background(), o.UserID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOrganization, u.Role)
	assert.False(t, u.IsActive, "organizations start inactive")
	assert.False(t, u.IsVerified)

	assert.Equal(t, []activation{{"admin@acme.test", "Acme Clinic"}}, env.activator.sent)
}

func TestService_Signup_EmailCheckedFirst(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	env.signup(t, "ACM", "admin@acme.test")

	_, err := env.svc.Signup(context.Background(), signup("Other", "acm", "ADMIN@acme.test"))
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
}

func TestService_Signup_AcronymTaken(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	env.signup(t, "ACM", "admin@acme.test")

	_, err := env.svc.Signup(context.Background(), signup("Acme Two", "acm", "two@acme.test"))
	assert.ErrorIs(t, err, apperr.ErrAcronymTaken)
	assert.Equal(t, 1, env.users.count())
	assert.Equal(t, 1, env.repo.count())
}

func TestService_Signup_WeakPassword(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	in := signup("Acme", "ACM", "admin@acme.test")
	in.Password = "12345678"

	_, err := env.svc.Signup(context.Background(), in)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 0, env.users.count())
}

func TestService_Signup_ActivationFailure(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	env.activator.fail = errors.New("queue down")

	o, err := env.svc.Signup(context.Background(), signup("Acme", "ACM", "admin@acme.test"))
	require.NotNil(t, o)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Equal(t, 1, env.repo.count())
}

func TestService_Profile_OwnerOnly(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	o, owner := env.signup(t, "ACM", "admin@acme.test")
	_, other := env.signup(t, "BET", "admin@beta.test")
	ctx := context.Background()

	got, err := env.svc.Profile(ctx, owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACM", got.Acronym)

	_, err = env.svc.Profile(ctx, other, o.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	nurse := auth.CaregiverActor{User: uuid.New(), CaregiverID: uuid.New(), OrganizationID: o.ID}
	_, err = env.svc.Profile(ctx, nurse, o.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestService_UpdateProfile(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	o, owner := env.signup(t, "ACM", "admin@acme.test")
	phone := "+2348012345678"

	got, err := env.svc.UpdateProfile(context.Background(), owner, o.ID, ProfilePatch{
		Name:        strPtr("acme specialist clinic"),
		PhoneNumber: &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Specialist Clinic", got.Name)
	assert.Equal(t, "ACM", got.Acronym)

	stored, err := env.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, phone, *stored.PhoneNumber)
	assert.Nil(t, stored.Address)
}

func strPtr(s string) *string { return &s }

func TestService_UploadLogo(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	_, owner := env.signup(t, "ACM", "admin@acme.test")
	img := blobstore.Image{Ext: ".png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n")}

	o, err := env.svc.UploadLogo(context.Background(), owner, img)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.Logo, "http://localhost:8000/media/organization_logos/"))

	_, err = env.svc.UploadLogo(context.Background(), owner, img)
	require.NoError(t, err)
	assert.Equal(t, 1, env.blobs.Len())
}

func TestService_Dashboard(t *testing.T) {
	cg := stubCaregivers{
		counts: caregiver.Counts{Total: 3, Active: 2, Verified: 2},
		latest: []*caregiver.Caregiver{{FirstName: "Ada"}},
	}
	pt := stubPatients{counts: patient.Counts{Total: 5, Active: 4, ActiveFemale: 3}}
	env := newTestEnv(t, cg, pt)
	_, owner := env.signup(t, "ACM", "admin@acme.test")

	d, err := env.svc.Dashboard(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Statistics.Caregivers.Total)
	assert.Equal(t, 3, d.Statistics.Patients.ActiveFemale)
	assert.Len(t, d.LatestCaregivers, 1)
	assert.NotNil(t, d.LatestPatients)
	assert.Empty(t, d.LatestPatients)

	_, err = env.svc.Dashboard(context.Background(), auth.PatientActor{User: uuid.New()})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestDirectory(t *testing.T) {
	env := newTestEnv(t, stubCaregivers{}, stubPatients{})
	o, owner := env.signup(t, "ACM", "admin@acme.test")
	dir := NewDirectory(env.repo)
	ctx := context.Background()

	tenant, err := dir.Tenant(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Tenant{ID: o.ID, UserID: owner.User, Name: "Acme Clinic", Acronym: "ACM"}, *tenant)

	_, err = dir.Tenant(ctx, uuid.New())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	name, err := dir.DisplayName(ctx, owner.User)
	require.NoError(t, err)
	assert.Equal(t, "Acme Clinic", name)

	name, err = dir.DisplayName(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, name)
}
