package providers

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

// telnyxEventMap translates fax event types onto the canonical lifecycle.
// Events outside the fax lifecycle (media processed, sending started) map to
// processing; anything unknown is rejected.
var telnyxEventMap = map[string]enums.FaxStatus{
	"fax.queued":          enums.FaxStatusQueued,
	"fax.media.processed": enums.FaxStatusProcessing,
	"fax.sending.started": enums.FaxStatusProcessing,
	"fax.delivered":       enums.FaxStatusDelivered,
	"fax.failed":          enums.FaxStatusFailed,
}

// VerifyTelnyxSignature checks the Ed25519 webhook signature. Telnyx signs
// "<timestamp>|<body>" and sends the base64 signature and timestamp in
// separate headers; publicKey is the base64-encoded key from the portal.
func VerifyTelnyxSignature(publicKey string, body []byte, signature, timestamp string) bool {
	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKey))
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	signed := append([]byte(timestamp+"|"), body...)
	return ed25519.Verify(ed25519.PublicKey(keyBytes), signed, sigBytes)
}

// ParseTelnyxEvent normalizes a Telnyx fax webhook payload.
func ParseTelnyxEvent(body []byte) (*DeliveryEvent, error) {
	var payload struct {
		Data struct {
			EventType  string    `json:"event_type"`
			ID         string    `json:"id"`
			OccurredAt time.Time `json:"occurred_at"`
			Payload    struct {
				FaxID         string          `json:"fax_id"`
				Status        string          `json:"status"`
				FailureReason string          `json:"failure_reason"`
				PageCount     json.RawMessage `json:"page_count"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode telnyx webhook")
	}
	if payload.Data.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "telnyx event id missing")
	}
	if payload.Data.Payload.FaxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "telnyx fax id missing")
	}

	status, ok := telnyxEventMap[strings.ToLower(payload.Data.EventType)]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized telnyx event type")
	}

	occurredAt := payload.Data.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return &DeliveryEvent{
		EventID:       payload.Data.ID,
		Provider:      enums.FaxProviderTelnyx,
		ProviderFaxID: payload.Data.Payload.FaxID,
		Status:        status,
		StatusDetail:  payload.Data.Payload.FailureReason,
		Pages:         parsePageCount(payload.Data.Payload.PageCount),
		OccurredAt:    occurredAt.UTC(),
	}, nil
}

// parsePageCount tolerates both numeric and string page counts; Telnyx has
// shipped both over time.
func parsePageCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return 0
}
