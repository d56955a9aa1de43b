package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/token"
)

// AccessCookie and RefreshCookie name the cookies login sets for browser clients.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// TokenVerifier is satisfied by *token.Service.
type TokenVerifier interface {
	Verify(raw string, purpose token.Purpose) (*token.Claims, error)
}

// ActorResolver turns an authenticated user id into an Actor, loading the
// user's role profile. It fails when the user is unknown or inactive.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID uuid.UUID) (Actor, error)
}

type JWTConfig struct {
	Tokens      TokenVerifier
	Revocations RevocationStore
	Resolver    ActorResolver
	// Skipper bypasses authentication for public routes.
	Skipper func(echo.Context) bool
}

var errUnauthenticated = apperr.Unauthenticated("unauthenticated", "authentication credentials were not provided or are invalid")

// JWTMiddleware authenticates access tokens from the Authorization header or
// the access cookie and stores the resolved Actor on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			raw, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := cfg.Tokens.Verify(raw, token.PurposeAccess)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					return apperr.ErrTokenExpired.Wrap(err)
				}
				return errUnauthenticated.Wrap(err)
			}

			ctx := c.Request().Context()
			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return err
				}
				if revoked {
					return errUnauthenticated.WithMessage("token has been revoked")
				}
			}

			userID, err := claims.SubjectID()
			if err != nil {
				return errUnauthenticated.Wrap(err)
			}
			actor, err := cfg.Resolver.ResolveActor(ctx, userID)
			if err != nil {
				return err
			}

			c.Set("user_id", userID.String())
			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header != "" {
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
			return "", errUnauthenticated.WithMessage("invalid authorization format")
		}
		return strings.TrimSpace(raw), nil
	}
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", errUnauthenticated.WithMessage("missing authorization header")
}

// MustActor returns the request's actor or an Unauthenticated error.
func MustActor(c echo.Context) (Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return nil, errUnauthenticated
	}
	return a, nil
}
