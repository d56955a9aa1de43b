package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/validation"
	"github.com/medipt/medipt/pkg/civil"
	"github.com/medipt/medipt/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the organization-facing patient endpoints on orgs
// (/api/v1/organizations) and the record endpoints on pg (/api/v1/patients).
func (h *Handler) RegisterRoutes(orgs, pg *echo.Group) {
	orgOnly := auth.RequireRole(auth.RoleOrganization)
	staff := auth.RequireRole(auth.RoleOrganization, auth.RoleCaregiver)
	anyRecordRole := auth.RequireRole(auth.RoleOrganization, auth.RoleCaregiver, auth.RolePatient)

	orgs.GET("/patients", h.List, orgOnly)
	orgs.GET("/latest-patients", h.Latest, orgOnly)
	orgs.POST("/patients", h.Register, orgOnly)
	orgs.PATCH("/patients/:id/toggle-status", h.ToggleStatus, orgOnly)
	orgs.GET("/health-record-history", h.OrganizationHistory, orgOnly)

	pg.GET("/by-medical-id/:medical_id", h.GetByMedicalID, anyRecordRole)
	pg.PATCH("/by-medical-id/:medical_id", h.UpdateRegistration, anyRecordRole)
	pg.PUT("/by-medical-id/:medical_id/picture", h.UploadPicture, anyRecordRole)
	pg.GET("/by-medical-id/:medical_id/diagnoses", h.PatientHistory, anyRecordRole)
	pg.POST("/:id/diagnoses", h.CreateDiagnosis, staff)
	pg.GET("/diagnoses/latest", h.LatestDiagnoses, staff)
	pg.GET("/diagnoses/:id", h.DiagnosisDetail, anyRecordRole)
	pg.PATCH("/diagnoses/:id", h.UpdateDiagnosis, staff)
}

type medicalRecordRequest struct {
	BloodGroup string           `json:"blood_group" validate:"required,bloodgroup"`
	Genotype   string           `json:"genotype" validate:"required,genotype"`
	Weight     *decimal.Decimal `json:"weight"`
	Height     *decimal.Decimal `json:"height"`
	Allergies  *string          `json:"allergies"`
}

type registerRequest struct {
	Email                string               `json:"email" validate:"required,email"`
	Password             string               `json:"password" validate:"required"`
	FirstName            string               `json:"first_name" validate:"required,max=255"`
	LastName             string               `json:"last_name" validate:"required,max=255"`
	DateOfBirth          *civil.Date          `json:"date_of_birth"`
	MaritalStatus        *string              `json:"marital_status" validate:"omitempty,maritalstatus"`
	Gender               *string              `json:"gender" validate:"omitempty,gender"`
	PhoneNumber          *string              `json:"phone_number" validate:"omitempty,phone"`
	EmergencyPhoneNumber *string              `json:"emergency_phone_number" validate:"omitempty,phone"`
	Address              *string              `json:"address"`
	MedicalRecord        medicalRecordRequest `json:"medical_record"`
}

type medicalRecordPatchRequest struct {
	BloodGroup *string          `json:"blood_group" validate:"omitempty,bloodgroup"`
	Genotype   *string          `json:"genotype" validate:"omitempty,genotype"`
	Weight     *decimal.Decimal `json:"weight"`
	Height     *decimal.Decimal `json:"height"`
	Allergies  *string          `json:"allergies"`
}

type updateRequest struct {
	FirstName            *string                    `json:"first_name" validate:"omitempty,min=1,max=255"`
	LastName             *string                    `json:"last_name" validate:"omitempty,min=1,max=255"`
	DateOfBirth          *civil.Date                `json:"date_of_birth"`
	MaritalStatus        *string                    `json:"marital_status" validate:"omitempty,maritalstatus"`
	Gender               *string                    `json:"gender" validate:"omitempty,gender"`
	PhoneNumber          *string                    `json:"phone_number" validate:"omitempty,phone"`
	EmergencyPhoneNumber *string                    `json:"emergency_phone_number" validate:"omitempty,phone"`
	Address              *string                    `json:"address"`
	MedicalRecord        *medicalRecordPatchRequest `json:"medical_record"`
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	f := ListFilter{
		Search:    c.QueryParam("search"),
		MedicalID: c.QueryParam("medical_id"),
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	if f.Active, err = validation.QueryBool(c, "active"); err != nil {
		return err
	}
	if f.Verified, err = validation.QueryBool(c, "verified"); err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), actor, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, p))
}

func (h *Handler) Latest(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Latest(c.Request().Context(), actor, LatestCount)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Register(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req registerRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Register(c.Request().Context(), actor, Registration{
		Email:                req.Email,
		Password:             req.Password,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		DateOfBirth:          req.DateOfBirth,
		MaritalStatus:        req.MaritalStatus,
		Gender:               req.Gender,
		PhoneNumber:          req.PhoneNumber,
		EmergencyPhoneNumber: req.EmergencyPhoneNumber,
		Address:              req.Address,
		MedicalRecord: MedicalRecordInput{
			BloodGroup: req.MedicalRecord.BloodGroup,
			Genotype:   req.MedicalRecord.Genotype,
			Weight:     req.MedicalRecord.Weight,
			Height:     req.MedicalRecord.Height,
			Allergies:  req.MedicalRecord.Allergies,
		},
	})
	if !apperr.Committed(err) {
		return err
	}
	body := echo.Map{"message": "Patient registered successfully", "data": p}
	if w := apperr.Warning(err); w != nil {
		body["message"] = "Patient created, but the welcome email could not be sent."
		body["warning"] = w
	}
	return c.JSON(http.StatusCreated, body)
}

func (h *Handler) ToggleStatus(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	active, err := h.svc.ToggleStatus(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	msg := "Patient deactivated"
	if active {
		msg = "Patient activated"
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "id": id, "active": active})
}

func (h *Handler) GetByMedicalID(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetByMedicalID(c.Request().Context(), actor, c.Param("medical_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateRegistration(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	patch := RegistrationPatch{
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		DateOfBirth:          req.DateOfBirth,
		MaritalStatus:        req.MaritalStatus,
		Gender:               req.Gender,
		PhoneNumber:          req.PhoneNumber,
		EmergencyPhoneNumber: req.EmergencyPhoneNumber,
		Address:              req.Address,
	}
	if mr := req.MedicalRecord; mr != nil {
		patch.MedicalRecord = &MedicalRecordPatch{
			BloodGroup: mr.BloodGroup,
			Genotype:   mr.Genotype,
			Weight:     mr.Weight,
			Height:     mr.Height,
			Allergies:  mr.Allergies,
		}
	}
	p, err := h.svc.UpdateRegistration(c.Request().Context(), actor, c.Param("medical_id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UploadPicture(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	img, err := blobstore.ImageFromForm(c, "profile_picture")
	if err != nil {
		return err
	}
	p, err := h.svc.UploadPicture(c.Request().Context(), actor, c.Param("medical_id"), img)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Profile picture updated", "profile_picture": p.ProfilePicture})
}

type vitalsRequest struct {
	BodyTemperature *decimal.Decimal `json:"body_temperature"`
	PulseRate       *int             `json:"pulse_rate" validate:"omitempty,gte=0"`
	BloodPressure   *string          `json:"blood_pressure" validate:"omitempty,bloodpressure"`
	BloodOxygen     *decimal.Decimal `json:"blood_oxygen"`
	RespirationRate *int             `json:"respiration_rate" validate:"omitempty,gte=0"`
	Weight          *decimal.Decimal `json:"weight"`
}

func (r *vitalsRequest) input() VitalsInput {
	return VitalsInput{
		BodyTemperature: r.BodyTemperature,
		PulseRate:       r.PulseRate,
		BloodPressure:   r.BloodPressure,
		BloodOxygen:     r.BloodOxygen,
		RespirationRate: r.RespirationRate,
		Weight:          r.Weight,
	}
}

type diagnosisRequest struct {
	CaregiverID      *uuid.UUID    `json:"caregiver_id"`
	Assessment       string        `json:"assessment" validate:"required,max=255"`
	Diagnoses        string        `json:"diagnoses" validate:"required,max=255"`
	Medication       string        `json:"medication" validate:"required,max=255"`
	HealthAllergies  *string       `json:"health_allergies"`
	HealthCareCenter string        `json:"health_care_center" validate:"required,max=255"`
	Notes            string        `json:"notes" validate:"required"`
	VitalSigns       vitalsRequest `json:"vital_signs"`
}

type diagnosisPatchRequest struct {
	Assessment       *string        `json:"assessment" validate:"omitempty,min=1,max=255"`
	Diagnoses        *string        `json:"diagnoses" validate:"omitempty,min=1,max=255"`
	Medication       *string        `json:"medication" validate:"omitempty,min=1,max=255"`
	HealthAllergies  *string        `json:"health_allergies"`
	HealthCareCenter *string        `json:"health_care_center" validate:"omitempty,min=1,max=255"`
	Notes            *string        `json:"notes" validate:"omitempty,min=1"`
	VitalSigns       *vitalsRequest `json:"vital_signs"`
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	patientID, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req diagnosisRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.CreateDiagnosis(c.Request().Context(), actor, patientID, DiagnosisInput{
		CaregiverID:      req.CaregiverID,
		Assessment:       req.Assessment,
		Diagnoses:        req.Diagnoses,
		Medication:       req.Medication,
		HealthAllergies:  req.HealthAllergies,
		HealthCareCenter: req.HealthCareCenter,
		Notes:            req.Notes,
		VitalSigns:       req.VitalSigns.input(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req diagnosisPatchRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	patch := DiagnosisPatch{
		Assessment:       req.Assessment,
		Diagnoses:        req.Diagnoses,
		Medication:       req.Medication,
		HealthAllergies:  req.HealthAllergies,
		HealthCareCenter: req.HealthCareCenter,
		Notes:            req.Notes,
	}
	if req.VitalSigns != nil {
		in := req.VitalSigns.input()
		patch.VitalSigns = &in
	}
	d, err := h.svc.UpdateDiagnosis(c.Request().Context(), actor, id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) LatestDiagnoses(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.LatestDiagnoses(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Diagnosis{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DiagnosisDetail(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.DiagnosisDetail(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) PatientHistory(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.PatientHistory(c.Request().Context(), actor, c.Param("medical_id"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Diagnosis{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) OrganizationHistory(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.OrganizationHistory(c.Request().Context(), actor, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, p))
}
