package invite

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
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

// RegisterRoutes mounts the invitation endpoints on g (/api/v1/invites).
// Accepting is public: the token is the credential.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	orgOnly := auth.RequireRole(auth.RoleOrganization)
	g.POST("", h.Invite, orgOnly)
	g.GET("", h.List, orgOnly)
	g.DELETE("/:id", h.Revoke, orgOnly)
	g.POST("/accept/:token", h.Accept)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,caregivertype"`
}

type acceptRequest struct {
	FirstName       string      `json:"first_name" validate:"required,max=255"`
	LastName        string      `json:"last_name" validate:"required,max=255"`
	Password        string      `json:"password" validate:"required"`
	ConfirmPassword string      `json:"confirm_password" validate:"required"`
	DateOfBirth     *civil.Date `json:"date_of_birth"`
	Gender          *string     `json:"gender" validate:"omitempty,gender"`
	MaritalStatus   *string     `json:"marital_status" validate:"omitempty,maritalstatus"`
	PhoneNumber     *string     `json:"phone_number" validate:"omitempty,phone"`
	Address         *string     `json:"address" validate:"omitempty,max=255"`
}

func (h *Handler) Invite(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req inviteRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	inv, err := h.svc.Invite(c.Request().Context(), actor, req.Email, caregiver.Type(req.Role))
	if !apperr.Committed(err) {
		return err
	}
	body := echo.Map{
		"message":       "Invitation sent successfully.",
		"invitation_id": inv.ID,
		"email":         inv.Email,
		"role":          inv.Role,
		"status":        inv.Status,
		"expires_at":    inv.ExpiresAt,
	}
	if w := apperr.Warning(err); w != nil {
		body["message"] = "Invitation created, but email sending failed."
		body["warning"] = w
	}
	return c.JSON(http.StatusCreated, body)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	f := ListFilter{Limit: p.Limit, Offset: p.Offset}
	if raw := c.QueryParam("status"); raw != "" {
		st := Status(raw)
		f.Status = &st
	}
	items, total, err := h.svc.List(c.Request().Context(), actor, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, p))
}

func (h *Handler) Revoke(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Revoke(c.Request().Context(), actor, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Accept(c echo.Context) error {
	var req acceptRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Accept(c.Request().Context(), c.Param("token"), Registration{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		DateOfBirth:     req.DateOfBirth,
		Gender:          req.Gender,
		MaritalStatus:   req.MaritalStatus,
		PhoneNumber:     req.PhoneNumber,
		Address:         req.Address,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "Caregiver account created successfully.",
		"user_id":      res.UserID,
		"email":        res.Email,
		"organization": res.Organization,
		"staff_number": res.Caregiver.StaffNumber,
	})
}
