// Package apperr defines the typed failures returned by services and how they
// are rendered over HTTP. Every failure carries a Kind (the taxonomy bucket),
// a stable machine-readable Code and a human-readable Message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation_failed"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindExpired         Kind = "expired"
	KindUnauthenticated Kind = "unauthenticated"
	KindDependency      Kind = "dependency_failed"
)

// Stable error codes.
const (
	CodeValidation           = "validation_failed"
	CodeWeakPassword         = "weak_password"
	CodePasswordMismatch     = "password_mismatch"
	CodeNotFound             = "not_found"
	CodeUserNotFound         = "user_not_found"
	CodeInvitationNotFound   = "invitation_not_found"
	CodeForbidden            = "forbidden"
	CodeEmailTaken           = "email_taken"
	CodeAcronymTaken         = "acronym_taken"
	CodeAlreadyAccepted      = "already_accepted"
	CodeActiveInvitation     = "active_invitation_exists"
	CodeMaxResendsExceeded   = "max_resends_exceeded"
	CodeAlreadyActive        = "already_active"
	CodeTokenExpired         = "token_expired"
	CodeInvitationExpired    = "invitation_expired"
	CodeTokenMalformed       = "token_malformed"
	CodeTokenInvalidPurpose  = "token_invalid_purpose"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeNotActivated         = "not_activated"
	CodeNotVerified          = "not_verified"
	CodeInvalidRefreshToken  = "invalid_refresh_token"
	CodeWrongCurrentPassword = "wrong_current_password"
	CodeNotificationFailed   = "notification_failed"
	CodeMedicalIDExhausted   = "medical_id_exhausted"
)

// Error is a typed application failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields holds per-field validation messages, keyed by JSON field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind and Code so callers can compare against
// the package-level templates with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap returns a copy of e that records cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return New(KindValidation, CodeValidation, message)
}

// ValidationFields builds a ValidationFailed error carrying per-field messages.
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: "request validation failed", Fields: fields}
}

func NotFound(what string) *Error {
	return New(KindNotFound, CodeNotFound, what+" not found")
}

func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Unauthenticated(code, message string) *Error {
	return New(KindUnauthenticated, code, message)
}

func Expired(code, message string) *Error {
	return New(KindExpired, code, message)
}

// NotificationFailed reports that a committed operation could not hand its
// email to the task queue.
func NotificationFailed(cause error) *Error {
	return &Error{Kind: KindDependency, Code: CodeNotificationFailed, Message: "operation succeeded but the notification could not be queued", Err: cause}
}

// Templates for errors.Is comparisons.
var (
	ErrAlreadyAccepted      = Conflict(CodeAlreadyAccepted, "invitation has already been accepted")
	ErrActiveInvitation     = Conflict(CodeActiveInvitation, "an active invitation already exists for this email")
	ErrMaxResendsExceeded   = Conflict(CodeMaxResendsExceeded, "invitation resend limit reached")
	ErrAlreadyActive        = Conflict(CodeAlreadyActive, "account is already active")
	ErrEmailTaken           = Conflict(CodeEmailTaken, "a user with this email already exists")
	ErrAcronymTaken         = Conflict(CodeAcronymTaken, "an organization with this acronym already exists")
	ErrInvalidCredentials   = Unauthenticated(CodeInvalidCredentials, "invalid email or password")
	ErrNotActivated         = Unauthenticated(CodeNotActivated, "account is not yet activated, please check your email")
	ErrNotVerified          = Unauthenticated(CodeNotVerified, "account is not verified, please check your email")
	ErrInvalidRefreshToken  = Unauthenticated(CodeInvalidRefreshToken, "refresh token is invalid or has been revoked")
	ErrTokenExpired         = Expired(CodeTokenExpired, "token has expired")
	ErrInvitationExpired    = Expired(CodeInvitationExpired, "invitation has expired")
	ErrTokenMalformed       = New(KindValidation, CodeTokenMalformed, "token is invalid")
	ErrTokenInvalidPurpose  = New(KindValidation, CodeTokenInvalidPurpose, "token cannot be used for this operation")
	ErrUserNotFound         = New(KindNotFound, CodeUserNotFound, "user not found")
	ErrInvitationNotFound   = New(KindNotFound, CodeInvitationNotFound, "invitation not found")
	ErrWeakPassword         = New(KindValidation, CodeWeakPassword, "password is too weak")
	ErrPasswordMismatch     = New(KindValidation, CodePasswordMismatch, "passwords do not match")
	ErrWrongCurrentPassword = New(KindValidation, CodeWrongCurrentPassword, "current password is incorrect")
)

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
