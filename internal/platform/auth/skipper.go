package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicRoutes lists route patterns reachable without an access token.
var publicRoutes = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
	"/api/v1/auth/accounts/organization-signup":    true,
	"/api/v1/auth/accounts/verify-account/:token":  true,
	"/api/v1/auth/accounts/login":                  true,
	"/api/v1/auth/accounts/resend-activation-link": true,
	"/api/v1/auth/accounts/password-reset":         true,
	"/api/v1/auth/accounts/password-reset-confirm": true,
	"/api/v1/auth/accounts/logout":                 true,
	"/api/v1/auth/accounts/token/refresh":          true,
	"/api/v1/invites/accept/:token":                true,
}

// AuthSkipper reports whether the matched route is public. Media files are
// public too.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicRoutes[path] || strings.HasPrefix(path, "/media/")
}
