package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope.
type Body struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type envelope struct {
	Error Body `json:"error"`
}

// HTTPErrorHandler renders *Error values with their kind's status and hides
// anything else behind a generic 500.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, envelope{Error: body})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func render(err error) (int, Body) {
	if ae, ok := As(err); ok {
		return Status(ae.Kind), Body{Code: ae.Code, Message: ae.Message, Fields: ae.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, Body{Code: codeForStatus(he.Code), Message: msg}
	}

	return http.StatusInternalServerError, Body{Code: "internal_error", Message: "an unexpected error occurred"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "http_error"
	}
}

// Warning converts a non-fatal failure attached to a successful result into
// the body fragment returned alongside the data. It returns nil for nil.
func Warning(err error) *Body {
	if err == nil {
		return nil
	}
	_, body := render(err)
	return &body
}

// Committed separates a service outcome into "primary operation succeeded"
// (err is nil or a post-commit notification failure) and a hard failure.
// Other dependency failures abort the operation.
func Committed(err error) bool {
	if err == nil {
		return true
	}
	ae, ok := As(err)
	return ok && ae.Kind == KindDependency && ae.Code == CodeNotificationFailed
}
