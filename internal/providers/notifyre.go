package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

// notifyreStatusMap translates Notifyre fax statuses onto the canonical
// lifecycle. Unknown statuses are rejected rather than guessed.
var notifyreStatusMap = map[string]enums.FaxStatus{
	"accepted":    enums.FaxStatusQueued,
	"queued":      enums.FaxStatusQueued,
	"preparing":   enums.FaxStatusProcessing,
	"in_progress": enums.FaxStatusProcessing,
	"sending":     enums.FaxStatusProcessing,
	"successful":  enums.FaxStatusDelivered,
	"failed":      enums.FaxStatusFailed,
	"cancelled":   enums.FaxStatusCancelled,
}

// VerifyNotifyreSignature checks the webhook HMAC. Notifyre signs the raw
// body with SHA-256 and sends the hex digest in the signature header.
func VerifyNotifyreSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// ParseNotifyreEvent normalizes a Notifyre fax webhook payload.
func ParseNotifyreEvent(body []byte) (*DeliveryEvent, error) {
	var payload struct {
		Event     string `json:"event"`
		EventID   string `json:"eventID"`
		Timestamp int64  `json:"timestamp"`
		Payload   struct {
			FaxID        string `json:"faxID"`
			FriendlyID   string `json:"friendlyID"`
			Status       string `json:"status"`
			FailedReason string `json:"failedMessage"`
			Pages        int    `json:"pages"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notifyre webhook")
	}
	if payload.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notifyre event id missing")
	}
	if payload.Payload.FaxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notifyre fax id missing")
	}

	status, ok := notifyreStatusMap[strings.ToLower(payload.Payload.Status)]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized notifyre fax status")
	}

	occurredAt := time.Now().UTC()
	if payload.Timestamp > 0 {
		occurredAt = time.Unix(payload.Timestamp, 0).UTC()
	}

	return &DeliveryEvent{
		EventID:       payload.EventID,
		Provider:      enums.FaxProviderNotifyre,
		ProviderFaxID: payload.Payload.FaxID,
		Status:        status,
		StatusDetail:  payload.Payload.FailedReason,
		Pages:         payload.Payload.Pages,
		OccurredAt:    occurredAt,
	}, nil
}
