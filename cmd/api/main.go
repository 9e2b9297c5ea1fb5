package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/faxpilot/faxpilot-backend/api/routes"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/internal/lookup"
	"github.com/faxpilot/faxpilot-backend/internal/rating"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/db"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/metrics"
	"github.com/faxpilot/faxpilot-backend/pkg/migrate"
	"github.com/faxpilot/faxpilot-backend/pkg/notifyre"
	"github.com/faxpilot/faxpilot-backend/pkg/redis"
	"github.com/faxpilot/faxpilot-backend/pkg/telnyx"
)

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	faxMetrics := metrics.NewFaxMetrics(prometheus.DefaultRegisterer)

	faxService, ledgerService, usageService, err := buildServices(cfg, logg, dbClient, redisClient, faxMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, faxService, ledgerService, usageService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	faxMetrics *metrics.FaxMetrics,
) (faxes.Service, ledger.Service, usage.Service, error) {
	var table *rating.Table
	if cfg.Rating.TablePath != "" {
		loaded, err := rating.LoadTable(cfg.Rating.TablePath)
		if err != nil {
			return nil, nil, nil, err
		}
		table = loaded
	} else {
		logg.Warn(context.Background(), "no rate table configured, every page bills the fail-open default")
	}

	engine, err := rating.NewEngine(table, cfg.Rating)
	if err != nil {
		return nil, nil, nil, err
	}

	var lookupClient lookup.NumberLookupClient
	if cfg.Lookup.APIKey != "" {
		client, err := telnyx.NewClient(
			cfg.Lookup.APIKey,
			telnyx.WithBaseURL(cfg.Lookup.BaseURL),
			telnyx.WithTimeout(cfg.Lookup.Timeout),
		)
		if err != nil {
			return nil, nil, nil, err
		}
		lookupClient = client
	} else {
		logg.Warn(context.Background(), "no lookup API key configured, rating will use dialed digits only")
	}

	lookupService, err := lookup.NewService(lookup.ServiceParams{
		Client:        lookupClient,
		Cache:         redisClient,
		Metrics:       faxMetrics,
		Logger:        logg,
		CacheTTL:      cfg.Lookup.CacheTTL,
		LocalCacheTTL: cfg.Lookup.LocalCacheTTL,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:              ledger.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Freemium:          cfg.Freemium,
		Metrics:           faxMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	usageService, err := usage.NewService(usage.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, nil, nil, err
	}

	sender, err := notifyre.NewClient(
		cfg.Notifyre.APIKey,
		notifyre.WithBaseURL(cfg.Notifyre.BaseURL),
		notifyre.WithTimeout(cfg.Notifyre.Timeout),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	faxService, err := faxes.NewService(faxes.ServiceParams{
		Repo:              faxes.NewRepository(dbClient.DB()),
		Ledger:            ledgerService,
		Usage:             usageService,
		Lookup:            lookupService,
		Rating:            engine,
		Sender:            sender,
		TransactionRunner: dbClient,
		Metrics:           faxMetrics,
		Logger:            logg,
		FreemiumCredits:   cfg.Freemium.Credits,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return faxService, ledgerService, usageService, nil
}
