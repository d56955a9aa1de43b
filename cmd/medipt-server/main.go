package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medipt/medipt/internal/config"
	"github.com/medipt/medipt/internal/domain/account"
	"github.com/medipt/medipt/internal/platform/auth"
	"github.com/medipt/medipt/internal/platform/db"
	"github.com/medipt/medipt/internal/platform/notification"
	"github.com/medipt/medipt/internal/platform/queue"
	"github.com/medipt/medipt/internal/platform/telemetry"
	"github.com/medipt/medipt/internal/platform/token"
	"github.com/medipt/medipt/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medipt-server",
		Short: "Multi-tenant healthcare administration API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued email tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// migrationSource prefers MIGRATIONS_DIR and falls back to the embedded set.
func migrationSource(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform administration",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a platform superuser",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := token.NewService([]byte(cfg.AuthSigningKey))
			if err != nil {
				return err
			}
			revocations := auth.NewMemoryRevocationStore()
			defer revocations.Close()

			// A superuser gets no activation email, so nothing is enqueued.
			mailer := notification.NewDispatcher(queue.NewMemoryQueue(), links(cfg), cfg.ActivationTokenTTL, cfg.PasswordResetTokenTTL)
			svc := account.NewService(account.NewUserRepo(pool), tokens, revocations, mailer, tokenTTLs(cfg),
				account.WithLogger(logger))

			u, err := svc.CreateSuperuser(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created superuser %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	create.Flags().String("email", "", "Superuser email address")
	create.Flags().String("password", "", "Superuser password")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	cmd.AddCommand(create)

	return cmd
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()

	infra, err := newInfra(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise infrastructure")
	}
	defer infra.Close()

	tokens, err := token.NewService([]byte(cfg.AuthSigningKey))
	if err != nil {
		return err
	}

	svcs := newServices(cfg, logger, pool, tokens, infra, metrics)
	e := newRouter(cfg, logger, pool, tokens, infra, svcs, metrics)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The in-memory queue only lives in this process, so it is consumed here.
	if mq, ok := infra.queue.(*queue.MemoryQueue); ok {
		mux, err := newTaskMux(cfg, logger)
		if err != nil {
			return err
		}
		go func() {
			_ = mq.Run(runCtx, mux)
		}()
		logger.Info().Msg("in-process task worker started")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-runCtx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if cfg.QueueBackend != "redis" {
		return fmt.Errorf("the worker needs QUEUE_BACKEND=redis; the memory queue is consumed by serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.New()
	infra, err := newInfra(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise infrastructure")
	}
	defer infra.Close()

	mux, err := newTaskMux(cfg, logger)
	if err != nil {
		return err
	}
	if err := infra.queue.Run(ctx, mux); err != nil {
		logger.Error().Err(err).Msg("task worker failed")
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
