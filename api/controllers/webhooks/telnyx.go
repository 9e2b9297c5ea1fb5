package webhooks

import (
	"io"
	"net/http"

	"github.com/faxpilot/faxpilot-backend/api/responses"
	"github.com/faxpilot/faxpilot-backend/internal/faxes"
	"github.com/faxpilot/faxpilot-backend/internal/providers"
	"github.com/faxpilot/faxpilot-backend/pkg/config"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
	"github.com/faxpilot/faxpilot-backend/pkg/logger"
	pkgredis "github.com/faxpilot/faxpilot-backend/pkg/redis"
)

const (
	telnyxSignatureHeader = "telnyx-signature-ed25519"
	telnyxTimestampHeader = "telnyx-timestamp"
)

// TelnyxWebhook ingests fax lifecycle events from Telnyx. Verified events
// are always ACKed; internal handling failures are logged and recovered by
// the reconcile sweep.
func TelnyxWebhook(svc faxes.Service, cfg config.WebhooksConfig, guard pkgredis.IdempotencyStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		if cfg.TelnyxPublicKey != "" {
			signature := r.Header.Get(telnyxSignatureHeader)
			timestamp := r.Header.Get(telnyxTimestampHeader)
			if !providers.VerifyTelnyxSignature(cfg.TelnyxPublicKey, body, signature, timestamp) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
				return
			}
		}

		event, err := providers.ParseTelnyxEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		}

		key, duplicate, err := dedupeEvent(r, guard, "telnyx", event.EventID, cfg.IdempotencyTTL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe"))
			return
		}
		if duplicate {
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleDeliveryEvent(r.Context(), event); err != nil {
			releaseEvent(r, guard, logg, key)
			if logg != nil {
				logg.Error(r.Context(), "telnyx delivery event handling failed", err)
			}
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
