package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
)

// RequireRole rejects requests whose actor has none of roles. Platform admins
// pass every gate.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := apperr.Forbidden(fmt.Sprintf("required role: %s", strings.Join(names, " or ")))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, err := MustActor(c)
			if err != nil {
				return err
			}
			if _, ok := a.(AdminActor); ok {
				return next(c)
			}
			for _, r := range roles {
				if a.Role() == r {
					return next(c)
				}
			}
			return denied
		}
	}
}
