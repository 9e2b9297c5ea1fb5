package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faxpilot/faxpilot-backend/internal/cron"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/internal/lookup"
	"github.com/faxpilot/faxpilot-backend/internal/rating"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/db"
	"github.com/faxpilot/faxpilot-backend/pkg/instance"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/metrics"
	"github.com/faxpilot/faxpilot-backend/pkg/migrate"
	"github.com/faxpilot/faxpilot-backend/pkg/notifyre"
	"github.com/faxpilot/faxpilot-backend/pkg/redis"
)

const lockKeyFormat = "fp:cron-worker:lock:%s"

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
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	faxRepo := faxes.NewRepository(dbClient.DB())
	faxService, err := buildFaxService(cfg, logg, dbClient, redisClient, faxRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to build fax service", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	reconcileJob, err := cron.NewUsageReconcileJob(cron.UsageReconcileJobParams{
		Logger:   logg,
		FaxRepo:  faxRepo,
		Accruer:  faxService,
		Lookback: cfg.Cron.ReconcileLookback,
		Limit:    cfg.Cron.ReconcileLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage reconcile job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.ReconcileInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	go serveMetrics(ctx, cfg.Cron.MetricsPort, logg)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildFaxService(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	faxRepo faxes.Repository,
) (faxes.Service, error) {
	var table *rating.Table
	if cfg.Rating.TablePath != "" {
		loaded, err := rating.LoadTable(cfg.Rating.TablePath)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	engine, err := rating.NewEngine(table, cfg.Rating)
	if err != nil {
		return nil, err
	}

	lookupService, err := lookup.NewService(lookup.ServiceParams{
		Cache:         redisClient,
		Logger:        logg,
		CacheTTL:      cfg.Lookup.CacheTTL,
		LocalCacheTTL: cfg.Lookup.LocalCacheTTL,
	})
	if err != nil {
		return nil, err
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:              ledger.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Freemium:          cfg.Freemium,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	usageService, err := usage.NewService(usage.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	sender, err := notifyre.NewClient(
		cfg.Notifyre.APIKey,
		notifyre.WithBaseURL(cfg.Notifyre.BaseURL),
		notifyre.WithTimeout(cfg.Notifyre.Timeout),
	)
	if err != nil {
		return nil, err
	}

	return faxes.NewService(faxes.ServiceParams{
		Repo:              faxRepo,
		Ledger:            ledgerService,
		Usage:             usageService,
		Lookup:            lookupService,
		Rating:            engine,
		Sender:            sender,
		TransactionRunner: dbClient,
		Logger:            logg,
		FreemiumCredits:   cfg.Freemium.Credits,
	})
}

func serveMetrics(ctx context.Context, port string, logg *logger.Logger) {
	if port == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
