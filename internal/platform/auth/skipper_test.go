package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper_PublicPaths(t *testing.T) {
	publicPaths := []string{
		"/health",
		"/health/db",
		"/metrics",
		"/api/v1/auth/accounts/login",
		"/api/v1/auth/accounts/verify-account/:token",
		"/api/v1/invites/accept/:token",
		"/media/organization_logo/abc.png",
	}

	for _, path := range publicPaths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(path)

			if !AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return true for %s", path)
			}
		})
	}
}

func TestAuthSkipper_ProtectedPaths(t *testing.T) {
	protectedPaths := []string{
		"/api/v1/auth/accounts/change-password",
		"/api/v1/invites/",
		"/api/v1/organizations/patients",
		"/api/v1/patients/diagnoses/latest",
		"/healthz",
	}

	for _, path := range protectedPaths {
		if IsPublicPath(path) {
			t.Errorf("expected %s to require authentication", path)
		}
	}
}
