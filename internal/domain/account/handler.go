package account

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/validation"
)

// CookieConfig controls the auth cookies set on login.
type CookieConfig struct {
	Secure bool
	Domain string
}

type Handler struct {
	svc     *Service
	cookies CookieConfig
}

func NewHandler(svc *Service, cookies CookieConfig) *Handler {
	return &Handler{svc: svc, cookies: cookies}
}

// RegisterRoutes mounts the account endpoints on g (/api/v1/auth/accounts).
// credentialLimit wraps the unauthenticated endpoints that accept
// credentials or send email.
func (h *Handler) RegisterRoutes(g *echo.Group, credentialLimit ...echo.MiddlewareFunc) {
	g.GET("/verify-account/:token", h.VerifyAccount)
	g.POST("/login", h.Login, credentialLimit...)
	g.POST("/resend-activation-link", h.ResendActivation, credentialLimit...)
	g.POST("/password-reset", h.RequestPasswordReset, credentialLimit...)
	g.POST("/password-reset-confirm", h.ConfirmPasswordReset, credentialLimit...)
	g.POST("/token/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/change-password", h.ChangePassword)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) VerifyAccount(c echo.Context) error {
	res, err := h.svc.Activate(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	if res.AlreadyActive {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Account is already active.", "already_active": true})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": activationMessage(res.Role)})
}

func activationMessage(r auth.Role) string {
	switch r {
	case auth.RoleOrganization:
		return "Organization account successfully activated"
	case auth.RolePatient:
		return "Patient account successfully activated"
	case auth.RoleCaregiver:
		return "Caregiver account successfully activated"
	case auth.RoleOrganizationAdmin:
		return "Organization Admin successfully activated"
	}
	return "Account successfully activated"
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.setCookie(c, auth.AccessCookie, res.Tokens.Access, res.Tokens.AccessExpiresAt)
	h.setCookie(c, auth.RefreshCookie, res.Tokens.Refresh, res.Tokens.RefreshExpiresAt)
	return c.JSON(http.StatusOK, echo.Map{
		"message":       "Login successful",
		"access_token":  res.Tokens.Access,
		"refresh_token": res.Tokens.Refresh,
		"user":          res.User,
	})
}

func (h *Handler) ResendActivation(c echo.Context) error {
	var req emailRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResendActivation(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Activation link has been resent. Please check your email"})
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req emailRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset link sent", "data": NormalizeEmail(req.Email)})
}

func (h *Handler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password successfully reset"})
}

func (h *Handler) Refresh(c echo.Context) error {
	raw, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	pair, err := h.svc.Refresh(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	h.setCookie(c, auth.AccessCookie, pair.Access, pair.AccessExpiresAt)
	h.setCookie(c, auth.RefreshCookie, pair.Refresh, pair.RefreshExpiresAt)
	return c.JSON(http.StatusOK, echo.Map{"access_token": pair.Access, "refresh_token": pair.Refresh})
}

func (h *Handler) Logout(c echo.Context) error {
	raw, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	var access string
	if ck, err := c.Cookie(auth.AccessCookie); err == nil {
		access = ck.Value
	}
	if err := h.svc.Logout(c.Request().Context(), raw, access); err != nil {
		return err
	}
	h.clearCookie(c, auth.AccessCookie)
	h.clearCookie(c, auth.RefreshCookie)
	return c.JSON(http.StatusOK, echo.Map{"message": "Successfully logged out"})
}

func (h *Handler) ChangePassword(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), actor, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}

// refreshToken reads the refresh token from the body, falling back to the
// refresh cookie.
func (h *Handler) refreshToken(c echo.Context) (string, error) {
	var req refreshRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return "", apperr.Validation("request body is malformed").Wrap(err)
		}
	}
	if req.Refresh != "" {
		return req.Refresh, nil
	}
	if ck, err := c.Cookie(auth.RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	return "", apperr.ValidationFields(map[string]string{"refresh": "this field is required"})
}

func (h *Handler) setCookie(c echo.Context, name, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
