package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tablepay-backend/internal/cron"
	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/internal/memberships"
	"github.com/angelmondragon/tablepay-backend/internal/orders"
	"github.com/angelmondragon/tablepay-backend/internal/payments"
	"github.com/angelmondragon/tablepay-backend/pkg/config"
	"github.com/angelmondragon/tablepay-backend/pkg/db"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
	"github.com/angelmondragon/tablepay-backend/pkg/metrics"
	"github.com/angelmondragon/tablepay-backend/pkg/migrate"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox"
	"github.com/angelmondragon/tablepay-backend/pkg/redis"
)

const lockKeyFormat = "tp:maintenance:lock:%s"

type closer interface {
	Close() error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	reconciler, err := payments.NewReconciler(payments.ServiceParams{
		Orders:      orders.NewRepository(conn),
		Payments:    ledger.NewPaymentRepository(conn),
		Refunds:     ledger.NewRefundRepository(conn),
		Permissions: memberships.NewChecker(memberships.NewRepository(conn)),
		Tx:          dbClient,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:     metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		return err
	}

	maintenanceMetrics := metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer)
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Outbox:        outbox.NewRepository(conn),
		RetentionDays: cfg.Maintenance.OutboxRetentionDays,
	})
	if err != nil {
		return err
	}
	reconcile, err := cron.NewPaymentStatusJob(cron.PaymentStatusJobParams{
		Logger:     logg,
		Candidates: orders.NewCandidateFinder(conn),
		Reconciler: reconciler,
		Metrics:    maintenanceMetrics,
		Lookback:   cfg.Maintenance.ReconcileLookback,
		BatchSize:  cfg.Maintenance.ReconcileBatchSize,
	})
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcile, retention),
		Lock:     lock,
		Metrics:  maintenanceMetrics,
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Maintenance.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
