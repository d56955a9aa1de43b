package validation

import (
	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
)

// Bind decodes the request into dst and validates it. Decode failures are
// reported as validation errors rather than echo's plain 400.
func Bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("request body is malformed").Wrap(err)
	}
	return Struct(dst)
}
