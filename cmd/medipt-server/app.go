package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medipt/medipt/internal/config"
	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/blobstore"
	"github.com/medipt/medipt/internal/platform/db"
	"github.com/medipt/medipt/internal/platform/notification"
	"github.com/medipt/medipt/internal/platform/queue"
	"github.com/medipt/medipt/internal/platform/telemetry"
)

// taskQueue is what serve and worker need from a queue backend.
type taskQueue interface {
	queue.Enqueuer
	Run(ctx context.Context, mux *queue.Mux) error
}

// infra holds the process-wide backends selected by configuration.
type infra struct {
	redis       *redis.Client
	queue       taskQueue
	revocations auth.RevocationStore
	blobs       blobstore.Store
	closers     []func()
}

func (i *infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func newInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) (*infra, error) {
	in := &infra{}
	policy := queue.RetryPolicy{MaxRetries: cfg.TaskMaxRetries, Delay: cfg.TaskRetryDelay}

	if cfg.QueueBackend == "redis" {
		client, err := queue.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		in.redis = client
		in.closers = append(in.closers, func() { _ = client.Close() })

		host, _ := os.Hostname()
		in.queue = queue.NewRedisQueue(client,
			queue.WithConsumerName(fmt.Sprintf("%s-%d", host, os.Getpid())),
			queue.WithRedisPolicy(policy),
			queue.WithRedisObserver(metrics.Task),
			queue.WithRedisLogger(logger),
		)
		in.revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("connected to redis")
	} else {
		in.queue = queue.NewMemoryQueue(
			queue.WithMemoryPolicy(policy),
			queue.WithMemoryObserver(metrics.Task),
			queue.WithMemoryLogger(logger),
		)
		mem := auth.NewMemoryRevocationStore()
		in.revocations = mem
		in.closers = append(in.closers, mem.Close)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.blobs = blobs
	return in, nil
}

func newBlobStore(cfg *config.Config) (blobstore.Store, error) {
	if cfg.StorageBackend == "memory" {
		return blobstore.NewMemoryStore(cfg.MediaBaseURL), nil
	}
	return blobstore.NewFSStore(cfg.MediaRoot, cfg.MediaBaseURL)
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	switch cfg.EmailBackend {
	case "smtp":
		return notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	case "http":
		return notification.NewHTTPSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	default:
		return notification.NewLogSender(logger)
	}
}

func newTaskMux(cfg *config.Config, logger zerolog.Logger) (*queue.Mux, error) {
	engine, err := notification.NewTemplateEngine()
	if err != nil {
		return nil, err
	}
	mux := queue.NewMux()
	notification.RegisterHandlers(mux, engine, newEmailSender(cfg, logger), logger)
	return mux, nil
}

func links(cfg *config.Config) notification.Links {
	return notification.Links{PublicBaseURL: cfg.PublicBaseURL, FrontendURL: cfg.FrontendURL}
}

func tokenTTLs(cfg *config.Config) account.TokenTTLs {
	return account.TokenTTLs{
		Access:        cfg.AccessTokenTTL,
		Refresh:       cfg.RefreshTokenTTL,
		Activation:    cfg.ActivationTokenTTL,
		PasswordReset: cfg.PasswordResetTokenTTL,
	}
}
