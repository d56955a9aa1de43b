package main

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/config"
	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/domain/caregiver"
	"github.com/medipt/medipt/internal/domain/invite"
	"github.com/medipt/medipt/internal/domain/organization"
	"github.com/medipt/medipt/internal/domain/patient"
	"github.com/medipt/medipt/internal/platform/apperr"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/db"
	"github.com/medipt/medipt/internal/platform/middleware"
	"github.com/medipt/medipt/internal/platform/notification"
	"github.com/medipt/medipt/internal/platform/telemetry"
	"github.com/medipt/medipt/internal/platform/token"
	"github.com/medipt/medipt/internal/platform/validation"
)

const (
	bodyLimit      = "1M"
	uploadLimit    = "6M"
	requestTimeout = 30 * time.Second
)

type services struct {
	accounts      *account.Service
	organizations *organization.Service
	caregivers    *caregiver.Service
	invites       *invite.Service
	patients      *patient.Service
}

// newServices builds the domain services. The organization directory is
// built first because every tenant-aware service resolves tenants through
// it, while the organization service itself depends on the others.
func newServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tokens *token.Service,
	in *infra, metrics *telemetry.Metrics) *services {
	tx := db.NewTxManager(pool)
	users := account.NewUserRepo(pool)
	orgRepo := organization.NewRepo(pool)
	directory := organization.NewDirectory(orgRepo)
	mailer := notification.NewDispatcher(in.queue, links(cfg), cfg.ActivationTokenTTL, cfg.PasswordResetTokenTTL)

	accounts := account.NewService(users, tokens, in.revocations, mailer, tokenTTLs(cfg),
		account.WithLogger(logger.With().Str("component", "account").Logger()),
		account.WithLoginObserver(metrics.Login),
		account.WithDisplayNames(directory),
	)

	caregivers := caregiver.NewService(caregiver.NewRepo(pool), in.blobs,
		caregiver.WithLogger(logger.With().Str("component", "caregiver").Logger()),
	)

	invites := invite.NewService(invite.NewRepo(pool), users, directory, caregivers, tx, mailer,
		invite.Config{Expiry: cfg.InvitationExpiry(), MaxResends: cfg.MaxInvitationResends},
		invite.WithLogger(logger.With().Str("component", "invite").Logger()),
		invite.WithObserver(metrics.Invitation),
	)

	patients := patient.NewService(patient.NewRepo(pool), patient.NewDiagnosisRepo(pool), users, directory,
		caregivers, tx, in.blobs, mailer,
		patient.WithLogger(logger.With().Str("component", "patient").Logger()),
	)

	organizations := organization.NewService(orgRepo, users, tx, accounts, caregivers, patients, in.blobs,
		organization.WithLogger(logger.With().Str("component", "organization").Logger()),
	)

	return &services{
		accounts:      accounts,
		organizations: organizations,
		caregivers:    caregivers,
		invites:       invites,
		patients:      patients,
	}
}

func newRouter(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tokens *token.Service,
	in *infra, svcs *services, metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.Default()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(metrics))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit, uploadLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Tokens:      tokens,
		Revocations: in.revocations,
		Resolver:    account.NewUserRepo(pool),
		Skipper:     auth.AuthSkipper,
	}))

	// Ops
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())
	e.GET("/media/*", blobstore.MediaHandler(in.blobs))

	api := e.Group("/api/v1")
	accounts := api.Group("/auth/accounts")
	orgs := api.Group("/organizations")
	invites := api.Group("/invites")
	caregivers := api.Group("/caregivers")
	patients := api.Group("/patients")

	credentialLimit := middleware.RateLimit(middleware.CredentialRateLimitConfig())

	account.NewHandler(svcs.accounts, account.CookieConfig{Secure: cfg.CookieSecure}).
		RegisterRoutes(accounts, credentialLimit)
	organization.NewHandler(svcs.organizations).RegisterRoutes(accounts, orgs, credentialLimit)
	caregiver.NewHandler(svcs.caregivers).RegisterRoutes(orgs, caregivers)
	invite.NewHandler(svcs.invites).RegisterRoutes(invites)
	patient.NewHandler(svcs.patients).RegisterRoutes(orgs, patients)

	return e
}
