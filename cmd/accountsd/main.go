package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-router"
	accounts "github.com/nextonlabs/go-accounts"
	"github.com/nextonlabs/go-accounts/activitymap"
	"github.com/nextonlabs/go-accounts/adapters/prommetrics"
	"github.com/nextonlabs/go-accounts/adapters/redisthrottle"
	"github.com/nextonlabs/go-accounts/adapters/zerologger"
	"github.com/nextonlabs/go-accounts/config"
	"github.com/nextonlabs/go-accounts/directory/cognito"
	"github.com/nextonlabs/go-accounts/middleware/bearer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	reconcileEvery = 10 * time.Minute
	reconcileAfter = 15 * time.Minute
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		zerologger.New(zerologger.Options{}).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := zerologger.New(zerologger.Options{
		Level:     cfg.LogLevel,
		Pretty:    cfg.Env == "development",
		Component: "accountsd",
	})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("accountsd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerologger.Logger) error {
	db, err := openDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.EnsureSchema {
		if err := accounts.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	repo := accounts.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	policy := accounts.NewCredentialPolicy(cfg.Policy.MinPasswordLength)
	policy.DefaultPhoneRegion = cfg.Policy.DefaultPhoneRegion

	directory, err := cognito.NewFromConfig(ctx, cognito.Config{
		Region:      cfg.Cognito.Region,
		UserPoolID:  cfg.Cognito.UserPoolID,
		AppClientID: cfg.Cognito.AppClientID,
		Timeout:     cfg.Cognito.Timeout,
		Policy:      policy,
	}, cognito.WithLogger(logger))
	if err != nil {
		return err
	}

	keys, err := accounts.LoadKeySet(ctx, accounts.KeySetConfig{
		URL:              cfg.JWKS.URL,
		Region:           cfg.Cognito.Region,
		PoolID:           cfg.Cognito.UserPoolID,
		RefreshInterval:  cfg.JWKS.RefreshInterval,
		RefreshRateLimit: cfg.JWKS.RefreshRateLimit,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer keys.EndBackground()

	metrics := prommetrics.New(nil)
	activity := accounts.MultiActivitySink{
		metrics,
		accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
			logger.Info("activity", activitymap.Normalize(event).Fields()...)
			return nil
		}),
	}

	lifecycleOpts := []accounts.LifecycleOption{
		accounts.WithLifecycleLogger(logger),
		accounts.WithLifecycleActivitySink(activity),
		accounts.WithCredentialPolicy(policy),
		accounts.WithMFARequired(cfg.Policy.MFARequired),
	}

	if cfg.Redis.Addr != "" {
		client, err := redisthrottle.Connect(ctx, redisthrottle.Config{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		lifecycleOpts = append(lifecycleOpts,
			accounts.WithReminderThrottle(redisthrottle.New(client, cfg.Policy.ReminderCooldown)),
		)
	} else {
		logger.Warn("ACCOUNTS_REDIS_ADDR not set, invitation reminders are not throttled")
	}

	lifecycle := accounts.NewLifecycle(repo, directory, lifecycleOpts...)
	service := accounts.NewService(repo, lifecycle)

	guard := accounts.NewAccessGuard(keys, repo.Accounts(),
		accounts.WithIdentityClaim(cfg.JWKS.IdentityClaim),
		accounts.WithGuardLogger(logger),
		accounts.WithGuardActivitySink(metrics),
	)

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				status, body := accounts.NewErrorResponse(err)
				return c.Status(status).JSON(body)
			},
		})
		return app
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	accounts.RegisterAccountRoutes(srv.Router(),
		accounts.WithControllerService(service),
		accounts.WithControllerLogger(logger),
		accounts.WithControllerDebug(cfg.Debug),
		accounts.WithControllerProtect(bearer.Protect(guard)),
	)

	go reconcile(ctx, repo.Operations(), logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("accountsd listening", "addr", cfg.HTTP.Addr)
		errc <- srv.Serve(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-WaitExitSignal():
		logger.Info("shutting down", "signal", sig.String())
	}

	return app.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout)
}

func openDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	if cfg.Driver == "sqlite" {
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// reconcile reports flows that stopped between the local store and the
// directory so an operator can repair them.
func reconcile(ctx context.Context, ops accounts.Operations, logger accounts.Logger) {
	ticker := time.NewTicker(reconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			unfinished, err := ops.ListUnfinished(ctx, reconcileAfter)
			if err != nil {
				logger.Error("failed to list unfinished operations", "error", err)
				continue
			}
			for _, op := range unfinished {
				logger.Warn("unfinished account operation",
					"operation_id", op.ID,
					"kind", op.Kind,
					"account_id", op.AccountID,
					"step", op.Step,
					"status", op.Status,
					"error", op.Error,
				)
			}
		}
	}
}

func WaitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
