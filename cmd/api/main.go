package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tablepay-backend/api/routes"
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

const shutdownTimeout = 15 * time.Second

type closer interface {
	Close() error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
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

	deps := routes.Dependencies{
		DB:       dbClient,
		Gatherer: prometheus.DefaultGatherer,
	}
	if cfg.Idempotency.Enabled {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient)
		deps.Redis = redisClient
		deps.Idempotency = redisClient
	}

	conn := dbClient.DB()
	svc, err := payments.NewService(payments.ServiceParams{
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
	deps.Payments = svc

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
