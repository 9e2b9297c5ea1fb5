package webhooks

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/internal/providers"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	pkgredis "github.com/faxpilot/faxpilot-backend/pkg/redis"
)

const (
	maxWebhookBody = 1 << 20

	notifyreSignatureHeader = "x-notifyre-signature"
)

// dedupeEvent claims the event ID for the retention window. The second
// return reports whether this delivery already ran.
func dedupeEvent(r *http.Request, guard pkgredis.IdempotencyStore, provider, eventID string, ttl time.Duration) (string, bool, error) {
	if guard == nil || eventID == "" {
		return "", false, nil
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	key := guard.IdempotencyKey("webhook:"+provider, eventID)
	claimed, err := guard.SetNX(r.Context(), key, "1", ttl)
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, err
	}
	return key, !claimed, nil
}

// releaseEvent frees a claimed event ID so the provider retry can run the
// handler again.
func releaseEvent(r *http.Request, guard pkgredis.IdempotencyStore, logg *logger.Logger, key string) {
	if guard == nil || key == "" {
		return
	}
	if err := guard.Del(r.Context(), key); err != nil && logg != nil {
		logg.Error(r.Context(), "failed to release webhook event claim", err)
	}
}

// NotifyreWebhook ingests delivery receipts from Notifyre. Once a delivery
// verifies and parses, the carrier always gets a success ACK: internal
// handling failures are logged and left to the reconcile sweep rather than
// bounced back onto the provider's retry schedule.
func NotifyreWebhook(svc faxes.Service, cfg config.WebhooksConfig, guard pkgredis.IdempotencyStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		if cfg.NotifyreSigningSecret != "" {
			signature := r.Header.Get(notifyreSignatureHeader)
			if !providers.VerifyNotifyreSignature(cfg.NotifyreSigningSecret, body, signature) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
				return
			}
		}

		event, err := providers.ParseNotifyreEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		}

		key, duplicate, err := dedupeEvent(r, guard, "notifyre", event.EventID, cfg.IdempotencyTTL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe"))
			return
		}
		if duplicate {
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleDeliveryEvent(r.Context(), event); err != nil {
			// The carrier still gets its ACK. Release the claim so a
			// redelivery or the reconcile sweep can land the accrual.
			releaseEvent(r, guard, logg, key)
			if logg != nil {
				logg.Error(r.Context(), "notifyre delivery event handling failed", err)
			}
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
