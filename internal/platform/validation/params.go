package validation

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
)

// ParamUUID reads a UUID path parameter. A malformed id can never match a
// record, so it is reported as not found.
func ParamUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.NotFound("resource")
	}
	return id, nil
}

// QueryBool reads an optional boolean query parameter; nil means absent.
func QueryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.ValidationFields(map[string]string{name: "must be true or false"})
	}
	return &v, nil
}
