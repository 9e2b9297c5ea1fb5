package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	CounterKey(name string) string
}

// SendRateLimit throttles fax submissions per authenticated user inside a
// fixed window. Disabled when the window or limit is zero.
func SendRateLimit(cfg config.RateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.SendWindow <= 0 || cfg.SendLimit <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := store.CounterKey("send:" + userID)
			count, err := store.IncrWithTTL(ctx, key, cfg.SendWindow)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > int64(cfg.SendLimit) {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"attempts":       count,
						"limit":          cfg.SendLimit,
						"window_seconds": int(cfg.SendWindow.Seconds()),
					})
					logg.Warn(logCtx, "send.rate_limit.blocked")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many fax submissions, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
