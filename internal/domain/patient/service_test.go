package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
)

const testPassword = "Correct-Horse-42"

// -- Mock Repositories --

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	records  map[uuid.UUID]*MedicalRecord
	taken    map[string]bool
	clock    time.Time
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		patients: make(map[uuid.UUID]*Patient),
		records:  make(map[uuid.UUID]*MedicalRecord),
		taken:    make(map[string]bool),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken[p.MedicalID] {
		return apperr.Conflict("medical_id_taken", "medical id is already assigned")
	}
	m.clock = m.clock.Add(time.Minute)
	p.CreatedAt, p.UpdatedAt = m.clock, m.clock
	cp := *p
	cp.MedicalRecord = nil
	m.patients[p.ID] = &cp
	m.taken[p.MedicalID] = true
	return nil
}

func (m *mockPatientRepo) MedicalIDExists(_ context.Context, medicalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taken[medicalID], nil
}

func (m *mockPatientRepo) load(p *Patient) *Patient {
	cp := *p
	if rec, ok := m.records[p.ID]; ok {
		rc := *rec
		cp.MedicalRecord = &rc
	}
	return &cp
}

func (m *mockPatientRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OrganizationID != orgID {
		return nil, apperr.NotFound("patient")
	}
	return m.load(p), nil
}

func (m *mockPatientRepo) GetByMedicalID(_ context.Context, medicalID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.MedicalID == medicalID {
			return m.load(p), nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (m *mockPatientRepo) inOrg(orgID uuid.UUID, keep func(*Patient) bool) []*Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.patients {
		if p.OrganizationID == orgID && keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockPatientRepo) List(_ context.Context, orgID uuid.UUID, f ListFilter) ([]*Patient, int, error) {
	all := m.inOrg(orgID, func(p *Patient) bool {
		if f.Active != nil && p.Active != *f.Active {
			return false
		}
		if f.Verified != nil && p.Verified != *f.Verified {
			return false
		}
		if f.MedicalID != "" && p.MedicalID != f.MedicalID {
			return false
		}
		if f.Search != "" {
			s := strings.ToLower(f.Search)
			return strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName+" "+p.MedicalID), s)
		}
		return true
	})
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit == 0 || end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (m *mockPatientRepo) Latest(_ context.Context, orgID uuid.UUID, n int) ([]*Patient, error) {
	all := m.inOrg(orgID, func(p *Patient) bool { return p.Active && p.Verified })
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (m *mockPatientRepo) Counts(_ context.Context, orgID uuid.UUID) (Counts, error) {
	var c Counts
	for _, p := range m.inOrg(orgID, func(*Patient) bool { return true }) {
		c.Total++
		male := p.Gender != nil && *p.Gender == "Male"
		female := p.Gender != nil && *p.Gender == "Female"
		if p.Active {
			c.Active++
			if male {
				c.ActiveMale++
			}
			if female {
				c.ActiveFemale++
			}
		}
		if p.Verified {
			c.Verified++
			if male {
				c.VerifiedMale++
			}
			if female {
				c.VerifiedFemale++
			}
		}
	}
	return c, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[p.ID]
	if !ok {
		return apperr.NotFound("patient")
	}
	cp := *p
	cp.MedicalID = cur.MedicalID
	cp.MedicalRecord = nil
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) ToggleActive(_ context.Context, orgID, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OrganizationID != orgID {
		return false, apperr.NotFound("patient")
	}
	p.Active = !p.Active
	return p.Active, nil
}

func (m *mockPatientRepo) SetPicture(_ context.Context, id uuid.UUID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return apperr.NotFound("patient")
	}
	p.ProfilePictureKey = &key
	return nil
}

func (m *mockPatientRepo) SaveMedicalRecord(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.records[r.PatientID] = &cp
	return nil
}

func (m *mockPatientRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patients)
}

func (m *mockPatientRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	patients := make(map[uuid.UUID]*Patient, len(m.patients))
	for id, p := range m.patients {
		cp := *p
		patients[id] = &cp
	}
	records := make(map[uuid.UUID]*MedicalRecord, len(m.records))
	for id, r := range m.records {
		cp := *r
		records[id] = &cp
	}
	taken := make(map[string]bool, len(m.taken))
	for k, v := range m.taken {
		taken[k] = v
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.patients, m.records, m.taken = patients, records, taken
	}
}

type mockDiagnosisRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*Diagnosis
	vitals    map[uuid.UUID]*VitalSigns
	patients  *mockPatientRepo
	clock     time.Time
	failSaves error
}

func newMockDiagnosisRepo(patients *mockPatientRepo) *mockDiagnosisRepo {
	return &mockDiagnosisRepo{
		items:    make(map[uuid.UUID]*Diagnosis),
		vitals:   make(map[uuid.UUID]*VitalSigns),
		patients: patients,
		clock:    time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockDiagnosisRepo) Create(_ context.Context, d *Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	d.CreatedAt, d.UpdatedAt = m.clock, m.clock
	cp := *d
	cp.VitalSigns = nil
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagnosisRepo) Update(_ context.Context, d *Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[d.ID]; !ok {
		return apperr.NotFound("diagnosis")
	}
	cp := *d
	cp.VitalSigns = nil
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagnosisRepo) SaveVitals(_ context.Context, v *VitalSigns) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves != nil {
		return m.failSaves
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	cp := *v
	m.vitals[v.DiagnosisID] = &cp
	return nil
}

// project fills the display fields the SQL join would return.
func (m *mockDiagnosisRepo) project(d *Diagnosis) *Diagnosis {
	cp := *d
	if v, ok := m.vitals[d.ID]; ok {
		vc := *v
		cp.VitalSigns = &vc
	}
	m.patients.mu.Lock()
	if p, ok := m.patients.patients[d.PatientID]; ok {
		cp.PatientName = p.FullName()
		cp.PatientMedicalID = p.MedicalID
		cp.PatientProfilePictureKey = p.ProfilePictureKey
	}
	m.patients.mu.Unlock()
	return &cp
}

func (m *mockDiagnosisRepo) filter(keep func(*Diagnosis) bool) []*Diagnosis {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Diagnosis
	for _, d := range m.items {
		if keep(d) {
			out = append(out, m.project(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockDiagnosisRepo) Get(_ context.Context, orgID, id uuid.UUID) (*Diagnosis, error) {
	out := m.filter(func(d *Diagnosis) bool { return d.ID == id && d.OrganizationID == orgID })
	if len(out) == 0 {
		return nil, apperr.NotFound("diagnosis")
	}
	return out[0], nil
}

func (m *mockDiagnosisRepo) Latest(_ context.Context, orgID uuid.UUID) ([]*Diagnosis, error) {
	seen := map[uuid.UUID]bool{}
	var out []*Diagnosis
	for _, d := range m.filter(func(d *Diagnosis) bool { return d.OrganizationID == orgID }) {
		if !seen[d.PatientID] {
			seen[d.PatientID] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDiagnosisRepo) ForPatient(_ context.Context, orgID, patientID uuid.UUID, caregiverID *uuid.UUID) ([]*Diagnosis, error) {
	return m.filter(func(d *Diagnosis) bool {
		if d.OrganizationID != orgID || d.PatientID != patientID {
			return false
		}
		return caregiverID == nil || d.CaregiverID == *caregiverID
	}), nil
}

func (m *mockDiagnosisRepo) ForOrganization(_ context.Context, orgID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error) {
	all := m.filter(func(d *Diagnosis) bool { return d.OrganizationID == orgID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit == 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockDiagnosisRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[uuid.UUID]*Diagnosis, len(m.items))
	for id, d := range m.items {
		cp := *d
		items[id] = &cp
	}
	vitals := make(map[uuid.UUID]*VitalSigns, len(m.vitals))
	for id, v := range m.vitals {
		cp := *v
		vitals[id] = &cp
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items, m.vitals = items, vitals
	}
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

func (m *mockUserRepo) snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*account.User, len(m.users))
	for id, u := range m.users {
		saved[id] = u
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.users = saved
	}
}

type mockTenants map[uuid.UUID]*account.Tenant

func (m mockTenants) Tenant(_ context.Context, id uuid.UUID) (*account.Tenant, error) {
	t, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("organization")
	}
	return t, nil
}

type mockCaregivers map[uuid.UUID]*caregiver.Caregiver

func (m mockCaregivers) InOrganization(_ context.Context, orgID, id uuid.UUID) (*caregiver.Caregiver, error) {
	cg, ok := m[id]
	if !ok || cg.OrganizationID != orgID {
		return nil, apperr.NotFound("caregiver")
	}
	return cg, nil
}

// rollbackTx restores every repository when the transaction fails.
type rollbackTx struct {
	mu        sync.Mutex
	restorers []func() func()
}

func (t *rollbackTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var restore []func()
	for _, snap := range t.restorers {
		restore = append(restore, snap())
	}
	if err := fn(ctx); err != nil {
		for _, r := range restore {
			r()
		}
		return err
	}
	return nil
}

type welcome struct {
	to, name, organization, medicalID string
}

type mockMailer struct {
	mu   sync.Mutex
	sent []welcome
	fail error
}

func (m *mockMailer) SendPatientWelcome(_ context.Context, to, name, organization, medicalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, welcome{to, name, organization, medicalID})
	return nil
}

// -- Test Env --

type testEnv struct {
	svc        *Service
	patients   *mockPatientRepo
	diagnoses  *mockDiagnosisRepo
	users      *mockUserRepo
	caregivers mockCaregivers
	blobs      *blobstore.MemoryStore
	mailer     *mockMailer
	seeds      []uuid.UUID
	acme       auth.OrganizationActor
	beta       auth.OrganizationActor
	nurse      auth.CaregiverActor
	doctor     auth.CaregiverActor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		patients:   newMockPatientRepo(),
		users:      newMockUserRepo(),
		caregivers: mockCaregivers{},
		blobs:      blobstore.NewMemoryStore("http://localhost:8000/media"),
		mailer:     &mockMailer{},
		acme:       auth.OrganizationActor{User: uuid.New(), OrganizationID: uuid.New()},
		beta:       auth.OrganizationActor{User: uuid.New(), OrganizationID: uuid.New()},
	}
	env.diagnoses = newMockDiagnosisRepo(env.patients)
	env.nurse = env.addCaregiver(env.acme.OrganizationID, caregiver.Nurse, "Ada", "Obi")
	env.doctor = env.addCaregiver(env.acme.OrganizationID, caregiver.Doctor, "Chidi", "Eze")

	tenants := mockTenants{
		env.acme.OrganizationID: {ID: env.acme.OrganizationID, UserID: env.acme.User, Name: "Acme Clinic", Acronym: "ACM"},
		env.beta.OrganizationID: {ID: env.beta.OrganizationID, UserID: env.beta.User, Name: "Beta Health", Acronym: "BET"},
	}
	tx := &rollbackTx{restorers: []func() func(){env.patients.snapshot, env.diagnoses.snapshot, env.users.snapshot}}
	env.svc = NewService(env.patients, env.diagnoses, env.users, tenants, env.caregivers, tx, env.blobs, env.mailer,
		WithSeedSource(func() uuid.UUID {
			if len(env.seeds) == 0 {
				return uuid.New()
			}
			s := env.seeds[0]
			env.seeds = env.seeds[1:]
			return s
		}))
	return env
}

func (env *testEnv) addCaregiver(orgID uuid.UUID, typ caregiver.Type, first, last string) auth.CaregiverActor {
	cg := &caregiver.Caregiver{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		OrganizationID: orgID,
		FirstName:      first,
		LastName:       last,
		CaregiverType:  typ,
	}
	env.caregivers[cg.ID] = cg
	return auth.CaregiverActor{User: cg.UserID, CaregiverID: cg.ID, OrganizationID: orgID}
}

func strPtr(s string) *string { return &s }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func registration(email string) Registration {
	return Registration{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ngozi",
		LastName:  "Okafor",
		Gender:    strPtr("Female"),
		MedicalRecord: MedicalRecordInput{
			BloodGroup: "O+",
			Genotype:   "AA",
			Weight:     dec("64.50"),
			Height:     dec("170.5"),
		},
	}
}

func (env *testEnv) register(t *testing.T, actor auth.OrganizationActor, email string) *Patient {
	t.Helper()
	p, err := env.svc.Register(context.Background(), actor, registration(email))
	require.NoError(t, err)
	return p
}

func (env *testEnv) patientActor(p *Patient) auth.PatientActor {
	return auth.PatientActor{User: p.UserID, PatientID: p.ID, OrganizationID: p.OrganizationID}
}

func diagnosisInput() DiagnosisInput {
	return DiagnosisInput{
		Assessment:       "Fever and fatigue",
		Diagnoses:        "Malaria",
		Medication:       "Artemether",
		HealthCareCenter: "Acme Clinic Ward B",
		Notes:            "Review in 3 days",
		VitalSigns: VitalsInput{
			BodyTemperature: dec("38.6"),
			PulseRate:       intPtr(92),
			BloodPressure:   strPtr("120/80"),
			BloodOxygen:     dec("97.5"),
		},
	}
}

func intPtr(n int) *int { return &n }

// -- Tests --

func TestMedicalID(t *testing.T) {
	seed := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.Equal(t, "ACM_1B4E28BA", MedicalID("acm", seed))
}

func TestService_Register(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "Ngozi@Example.com")

	assert.Equal(t, "ngozi@example.com", p.Email)
	assert.True(t, strings.HasPrefix(p.MedicalID, "ACM_"))
	assert.Len(t, p.MedicalID, len("ACM_")+8)
	assert.True(t, p.Active)
	assert.True(t, p.Verified)
	require.NotNil(t, p.MedicalRecord)
	assert.Equal(t, "O+", p.MedicalRecord.BloodGroup)

	u, err := env.users.GetByID(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.Equal(t, auth.RolePatient, u.Role)
	assert.True(t, u.IsActive)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, welcome{"ngozi@example.com", "Ngozi Okafor", "Acme Clinic", p.MedicalID}, env.mailer.sent[0])
}

func TestService_Register_RequiresOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(context.Background(), env.nurse, registration("a@example.com"))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, env.acme, "dup@example.com")

	_, err := env.svc.Register(context.Background(), env.beta, registration("DUP@example.com"))
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
	assert.Equal(t, 1, env.patients.count())
}

func TestService_Register_RetriesTakenMedicalID(t *testing.T) {
	env := newTestEnv(t)
	first := uuid.MustParse("aaaaaaaa-0000-4000-8000-000000000000")
	second := uuid.MustParse("bbbbbbbb-0000-4000-8000-000000000000")
	env.patients.taken[MedicalID("ACM", first)] = true
	env.seeds = []uuid.UUID{first, second}

	p := env.register(t, env.acme, "retry@example.com")
	assert.Equal(t, "ACM_BBBBBBBB", p.MedicalID)
}

func TestService_Register_MedicalIDExhaustedRollsBack(t *testing.T) {
	env := newTestEnv(t)
	seed := uuid.MustParse("cccccccc-0000-4000-8000-000000000000")
	env.patients.taken[MedicalID("ACM", seed)] = true
	for i := 0; i < medicalIDAttempts; i++ {
		env.seeds = append(env.seeds, seed)
	}

	_, err := env.svc.Register(context.Background(), env.acme, registration("full@example.com"))
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeMedicalIDExhausted, ae.Code)
	assert.Equal(t, 0, env.users.count(), "user insert must roll back")
	assert.Equal(t, 0, env.patients.count())
	assert.Empty(t, env.mailer.sent)
}

func TestService_Register_NumericLimits(t *testing.T) {
	env := newTestEnv(t)
	reg := registration("heavy@example.com")
	reg.MedicalRecord.Weight = dec("1000.00")
	reg.MedicalRecord.Height = dec("170.55")

	_, err := env.svc.Register(context.Background(), env.acme, reg)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "medical_record.weight")
	assert.Contains(t, ae.Fields, "medical_record.height")
	assert.Equal(t, 0, env.users.count())
}

func TestService_Register_NotificationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.fail = errors.New("queue down")

	p, err := env.svc.Register(context.Background(), env.acme, registration("late@example.com"))
	require.NotNil(t, p)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Equal(t, 1, env.patients.count(), "patient stays committed")
}

func TestService_List_DefaultsAndTenantScope(t *testing.T) {
	env := newTestEnv(t)
	a := env.register(t, env.acme, "a@example.com")
	env.register(t, env.acme, "b@example.com")
	env.register(t, env.beta, "c@example.com")
	_, err := env.svc.ToggleStatus(context.Background(), env.acme, a.ID)
	require.NoError(t, err)

	items, total, err := env.svc.List(context.Background(), env.acme, ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "inactive patients are hidden by default")
	assert.Len(t, items, 1)

	no := false
	items, _, err = env.svc.List(context.Background(), env.acme, ListFilter{Active: &no, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)
}

func TestService_GetByMedicalID_Scoping(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "scope@example.com")
	other := env.register(t, env.acme, "other@example.com")
	ctx := context.Background()

	for name, actor := range map[string]auth.Actor{
		"owning organization": env.acme,
		"caregiver":           env.nurse,
		"patient":             env.patientActor(p),
	} {
		got, err := env.svc.GetByMedicalID(ctx, actor, p.MedicalID)
		if assert.NoError(t, err, name) {
			assert.Equal(t, p.ID, got.ID, name)
		}
	}

	for name, actor := range map[string]auth.Actor{
		"other organization": env.beta,
		"other patient":      env.patientActor(other),
	} {
		_, err := env.svc.GetByMedicalID(ctx, actor, p.MedicalID)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound), name)
	}
}

func TestService_UpdateRegistration(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "patch@example.com")

	got, err := env.svc.UpdateRegistration(context.Background(), env.patientActor(p), p.MedicalID, RegistrationPatch{
		FirstName: strPtr("Amaka"),
		Address:   strPtr("12 Marina Road"),
		MedicalRecord: &MedicalRecordPatch{
			Genotype: strPtr("AS"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Amaka", got.FirstName)
	assert.Equal(t, "Okafor", got.LastName)
	assert.Equal(t, p.MedicalID, got.MedicalID)
	require.NotNil(t, got.Address)
	assert.Equal(t, "12 Marina Road", *got.Address)

	stored, err := env.patients.GetByMedicalID(context.Background(), p.MedicalID)
	require.NoError(t, err)
	assert.Equal(t, "AS", stored.MedicalRecord.Genotype)
	assert.Equal(t, "O+", stored.MedicalRecord.BloodGroup)
}

func TestService_UpdateRegistration_OtherTenant(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "guarded@example.com")

	_, err := env.svc.UpdateRegistration(context.Background(), env.beta, p.MedicalID, RegistrationPatch{FirstName: strPtr("X")})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_UpdateRegistration_CreatesMissingRecord(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "norecord@example.com")
	env.patients.mu.Lock()
	delete(env.patients.records, p.ID)
	env.patients.mu.Unlock()

	_, err := env.svc.UpdateRegistration(context.Background(), env.acme, p.MedicalID, RegistrationPatch{
		MedicalRecord: &MedicalRecordPatch{Allergies: strPtr("Penicillin")},
	})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "medical_record.blood_group")
	assert.Contains(t, ae.Fields, "medical_record.genotype")

	_, err = env.svc.UpdateRegistration(context.Background(), env.acme, p.MedicalID, RegistrationPatch{
		MedicalRecord: &MedicalRecordPatch{BloodGroup: strPtr("A-"), Genotype: strPtr("AA")},
	})
	require.NoError(t, err)
}

func TestService_UploadPicture(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "pic@example.com")
	img := blobstore.Image{Data: []byte("\x89PNG\r\n\x1a\n"), Ext: ".png", ContentType: "image/png"}

	got, err := env.svc.UploadPicture(context.Background(), env.patientActor(p), p.MedicalID, img)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.ProfilePicture, "http://localhost:8000/media/patient_profile_pictures/"))

	_, err = env.svc.UploadPicture(context.Background(), env.patientActor(p), p.MedicalID, img)
	require.NoError(t, err)
	assert.Equal(t, 1, env.blobs.Len(), "the replaced picture is deleted")
}

func TestService_Counts(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, env.acme, "f1@example.com")
	env.register(t, env.acme, "f2@example.com")
	env.register(t, env.beta, "f3@example.com")

	c, err := env.svc.Counts(context.Background(), env.acme.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 2, Active: 2, Verified: 2, ActiveFemale: 2, VerifiedFemale: 2}, c)
}

func TestService_CreateDiagnosis_ByCaregiver(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "sick@example.com")
	in := diagnosisInput()
	other := env.doctor.CaregiverID
	in.CaregiverID = &other

	d, err := env.svc.CreateDiagnosis(context.Background(), env.nurse, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, env.nurse.CaregiverID, d.CaregiverID, "caregivers always author their own diagnoses")
	assert.Equal(t, p.MedicalID, d.PatientMedicalID)
	require.NotNil(t, d.VitalSigns)
	assert.Equal(t, "38.6", d.VitalSigns.BodyTemperature.Decimal.String())
	assert.Equal(t, 92, *d.VitalSigns.PulseRate)
}

func TestService_CreateDiagnosis_ByOrganization(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "sick@example.com")
	ctx := context.Background()

	_, err := env.svc.CreateDiagnosis(ctx, env.acme, p.ID, diagnosisInput())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "caregiver_id")

	in := diagnosisInput()
	in.CaregiverID = &env.doctor.CaregiverID
	d, err := env.svc.CreateDiagnosis(ctx, env.acme, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, env.doctor.CaregiverID, d.CaregiverID)

	foreign := env.addCaregiver(env.beta.OrganizationID, caregiver.Doctor, "Bola", "Ade")
	in.CaregiverID = &foreign.CaregiverID
	_, err = env.svc.CreateDiagnosis(ctx, env.acme, p.ID, in)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_CreateDiagnosis_Rejections(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "sick@example.com")
	ctx := context.Background()

	_, err := env.svc.CreateDiagnosis(ctx, env.patientActor(p), p.ID, diagnosisInput())
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	stranger := env.addCaregiver(env.beta.OrganizationID, caregiver.Nurse, "Tunde", "Bello")
	_, err = env.svc.CreateDiagnosis(ctx, stranger, p.ID, diagnosisInput())
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	in := diagnosisInput()
	in.VitalSigns.BodyTemperature = dec("1000.1")
	in.VitalSigns.PulseRate = intPtr(-1)
	_, err = env.svc.CreateDiagnosis(ctx, env.nurse, p.ID, in)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "vital_signs.body_temperature")
	assert.Contains(t, ae.Fields, "vital_signs.pulse_rate")
}

func TestService_CreateDiagnosis_RollsBackWithoutVitals(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "sick@example.com")
	env.diagnoses.failSaves = errors.New("disk full")

	_, err := env.svc.CreateDiagnosis(context.Background(), env.nurse, p.ID, diagnosisInput())
	require.Error(t, err)
	items, _, err := env.diagnoses.ForOrganization(context.Background(), env.acme.OrganizationID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestService_UpdateDiagnosis(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "sick@example.com")
	d, err := env.svc.CreateDiagnosis(context.Background(), env.nurse, p.ID, diagnosisInput())
	require.NoError(t, err)

	got, err := env.svc.UpdateDiagnosis(context.Background(), env.nurse, d.ID, DiagnosisPatch{
		Notes:      strPtr("Discharged"),
		VitalSigns: &VitalsInput{BodyTemperature: dec("36.8")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Discharged", got.Notes)
	assert.Equal(t, "Malaria", got.Diagnoses)
	assert.Equal(t, "36.8", got.VitalSigns.BodyTemperature.Decimal.String())
	assert.Equal(t, "120/80", *got.VitalSigns.BloodPressure, "unpatched readings are kept")

	_, err = env.svc.UpdateDiagnosis(context.Background(), env.beta, d.ID, DiagnosisPatch{Notes: strPtr("x")})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_UpdateDiagnosis_OtherCaregiverCannotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "authored@example.com")
	ctx := context.Background()
	d, err := env.svc.CreateDiagnosis(ctx, env.doctor, p.ID, diagnosisInput())
	require.NoError(t, err)

	_, err = env.svc.UpdateDiagnosis(ctx, env.nurse, d.ID, DiagnosisPatch{Notes: strPtr("overwritten")})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	got, err := env.svc.DiagnosisDetail(ctx, env.doctor, d.ID)
	require.NoError(t, err)
	assert.Equal(t, diagnosisInput().Notes, got.Notes)
	assert.Equal(t, env.doctor.CaregiverID, got.CaregiverID)

	_, err = env.svc.UpdateDiagnosis(ctx, env.acme, d.ID, DiagnosisPatch{Notes: strPtr("Reviewed")})
	assert.NoError(t, err, "the organization may update any diagnosis in its tenant")
}

func TestService_PatientHistory_CaregiverSeesOwn(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "history@example.com")
	ctx := context.Background()
	_, err := env.svc.CreateDiagnosis(ctx, env.nurse, p.ID, diagnosisInput())
	require.NoError(t, err)
	_, err = env.svc.CreateDiagnosis(ctx, env.doctor, p.ID, diagnosisInput())
	require.NoError(t, err)

	all, err := env.svc.PatientHistory(ctx, env.acme, p.MedicalID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := env.svc.PatientHistory(ctx, env.nurse, p.MedicalID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, env.nurse.CaregiverID, mine[0].CaregiverID)

	own, err := env.svc.PatientHistory(ctx, env.patientActor(p), p.MedicalID)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = env.svc.PatientHistory(ctx, env.beta, p.MedicalID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_DiagnosisDetail_Scoping(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "detail@example.com")
	other := env.register(t, env.acme, "bystander@example.com")
	ctx := context.Background()
	d, err := env.svc.CreateDiagnosis(ctx, env.nurse, p.ID, diagnosisInput())
	require.NoError(t, err)

	for _, actor := range []auth.Actor{env.acme, env.nurse, env.patientActor(p)} {
		_, err := env.svc.DiagnosisDetail(ctx, actor, d.ID)
		assert.NoError(t, err)
	}
	for _, actor := range []auth.Actor{env.beta, env.doctor, env.patientActor(other)} {
		_, err := env.svc.DiagnosisDetail(ctx, actor, d.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	}
}

func TestService_LatestDiagnoses(t *testing.T) {
	env := newTestEnv(t)
	a := env.register(t, env.acme, "a@example.com")
	b := env.register(t, env.acme, "b@example.com")
	ctx := context.Background()
	for _, id := range []uuid.UUID{a.ID, a.ID, b.ID} {
		_, err := env.svc.CreateDiagnosis(ctx, env.nurse, id, diagnosisInput())
		require.NoError(t, err)
	}

	items, err := env.svc.LatestDiagnoses(ctx, env.doctor)
	require.NoError(t, err)
	assert.Len(t, items, 2, "one per patient")

	_, err = env.svc.LatestDiagnoses(ctx, env.patientActor(a))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestService_OrganizationHistory(t *testing.T) {
	env := newTestEnv(t)
	p := env.register(t, env.acme, "org@example.com")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := env.svc.CreateDiagnosis(ctx, env.nurse, p.ID, diagnosisInput())
		require.NoError(t, err)
	}

	items, total, err := env.svc.OrganizationHistory(ctx, env.acme, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2)

	_, total, err = env.svc.OrganizationHistory(ctx, env.beta, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
