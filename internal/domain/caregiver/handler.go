package caregiver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/validation"
	"github.com/medipt/medipt/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the organization-facing caregiver listings on orgs
// (/api/v1/organizations) and the caregiver profile endpoints on cg
// (/api/v1/caregivers).
func (h *Handler) RegisterRoutes(orgs, cg *echo.Group) {
	orgOnly := orgs.Group("", auth.RequireRole(auth.RoleOrganization))
	orgOnly.GET("/caregivers", h.List)
	orgOnly.GET("/latest-caregivers", h.Latest)
	orgOnly.PATCH("/caregivers/:id/toggle-status", h.ToggleStatus)
	orgs.GET("/basic-caregivers", h.Basic, auth.RequireRole(auth.RoleOrganization, auth.RoleCaregiver))

	cg.GET("/me", h.Me, auth.RequireRole(auth.RoleCaregiver))
	cg.PUT("/me/picture", h.UploadPicture, auth.RequireRole(auth.RoleCaregiver))
	cg.GET("/:id", h.Get, auth.RequireRole(auth.RoleOrganization, auth.RoleCaregiver))
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	f := ListFilter{Search: c.QueryParam("search"), Limit: p.Limit, Offset: p.Offset}
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
		items = []*Caregiver{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Basic(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Basic(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	cg, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cg)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	cg, err := h.svc.Me(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cg)
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
	msg := "Caregiver deactivated"
	if active {
		msg = "Caregiver activated"
	}
	return c.JSON(http.StatusOK, echo.Map{"message": msg, "id": id, "active": active})
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
	cg, err := h.svc.UploadPicture(c.Request().Context(), actor, img)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cg)
}
