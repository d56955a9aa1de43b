package organization

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts signup on accounts (/api/v1/auth/accounts) and the
// organization endpoints on orgs (/api/v1/organizations).
func (h *Handler) RegisterRoutes(accounts, orgs *echo.Group, signupLimit ...echo.MiddlewareFunc) {
	accounts.POST("/organization-signup", h.Signup, signupLimit...)

	orgOnly := auth.RequireRole(auth.RoleOrganization)
	orgs.GET("/organization-statistics", h.Dashboard, orgOnly)
	orgs.GET("/profile/:id", h.Profile, orgOnly)
	orgs.PATCH("/profile/:id", h.UpdateProfile, orgOnly)
	orgs.PUT("/logo", h.UploadLogo, orgOnly)
}

type signupRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Acronym     string  `json:"acronym" validate:"required,acronym"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required"`
	Address     *string `json:"address"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
}

type profileRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Address     *string `json:"address"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.Signup(c.Request().Context(), Signup{
		Name:        req.Name,
		Acronym:     req.Acronym,
		Email:       req.Email,
		Password:    req.Password,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if !apperr.Committed(err) {
		return err
	}
	body := echo.Map{"message": "Organization registered successfully", "data": o}
	if w := apperr.Warning(err); w != nil {
		body["warning"] = w
	}
	return c.JSON(http.StatusCreated, body)
}

func (h *Handler) Dashboard(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Organization Dashboard Data", "data": d})
}

func (h *Handler) Profile(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Profile(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req profileRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.UpdateProfile(c.Request().Context(), actor, id, ProfilePatch{
		Name:        req.Name,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UploadLogo(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	img, err := blobstore.ImageFromForm(c, "logo")
	if err != nil {
		return err
	}
	o, err := h.svc.UploadLogo(c.Request().Context(), actor, img)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Logo updated", "logo": o.Logo})
}
