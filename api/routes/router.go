package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faxpilot/faxpilot-backend/api/controllers"
	webhookcontrollers "github.com/faxpilot/faxpilot-backend/api/controllers/webhooks"
	"github.com/faxpilot/faxpilot-backend/api/middleware"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/internal/ledger"
	"github.com/faxpilot/faxpilot-backend/internal/usage"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/db"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	"github.com/faxpilot/faxpilot-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	faxService faxes.Service,
	ledgerService ledger.Service,
	usageService usage.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Providers authenticate with signatures, not bearer tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/notifyre", webhookcontrollers.NotifyreWebhook(faxService, cfg.Webhooks, redisClient, logg))
		r.Post("/telnyx", webhookcontrollers.TelnyxWebhook(faxService, cfg.Webhooks, redisClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.With(middleware.SendRateLimit(cfg.RateLimit, redisClient, logg)).
			Post("/faxes", controllers.SendFax(faxService, logg))
		r.Post("/faxes/quote", controllers.QuoteFax(faxService, logg))
		r.Get("/faxes", controllers.ListFaxes(faxService, logg))
		r.Get("/faxes/{faxId}", controllers.GetFax(faxService, logg))

		r.Get("/credits/balance", controllers.CreditBalance(ledgerService, logg))
		r.Get("/credits/history", controllers.CreditHistory(ledgerService, logg))

		r.Get("/usage", controllers.ListUsage(usageService, logg))
	})

	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(middleware.InternalKey(cfg.App.InternalAPIKey, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/credits/grants", controllers.GrantCredits(ledgerService, logg))
	})

	return r
}
