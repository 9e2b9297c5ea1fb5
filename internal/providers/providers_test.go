package providers

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/enums"
)

func TestParseNotifyreEvent(t *testing.T) {
	body := []byte(`{
		"event": "fax_sent",
		"eventID": "evt-1",
		"timestamp": 1756000000,
		"payload": {"faxID": "fax_abc", "friendlyID": "FAX-001", "status": "successful", "pages": 4}
	}`)

	event, err := ParseNotifyreEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.EventID != "evt-1" || event.ProviderFaxID != "fax_abc" {
		t.Fatalf("unexpected identifiers %+v", event)
	}
	if event.Provider != enums.FaxProviderNotifyre {
		t.Fatalf("unexpected provider %s", event.Provider)
	}
	if event.Status != enums.FaxStatusDelivered || event.Pages != 4 {
		t.Fatalf("unexpected status %+v", event)
	}
	if !event.OccurredAt.Equal(time.Unix(1756000000, 0).UTC()) {
		t.Fatalf("unexpected timestamp %v", event.OccurredAt)
	}
}

func TestParseNotifyreEventFailure(t *testing.T) {
	body := []byte(`{
		"eventID": "evt-2",
		"payload": {"faxID": "fax_abc", "status": "failed", "failedMessage": "busy"}
	}`)

	event, err := ParseNotifyreEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Status != enums.FaxStatusFailed || event.StatusDetail != "busy" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestParseNotifyreEventRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"malformed":      `{`,
		"missing event":  `{"payload":{"faxID":"x","status":"successful"}}`,
		"missing fax id": `{"eventID":"e","payload":{"status":"successful"}}`,
		"odd status":     `{"eventID":"e","payload":{"faxID":"x","status":"levitating"}}`,
	}
	for name, body := range cases {
		if _, err := ParseNotifyreEvent([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestVerifyNotifyreSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"eventID":"evt-1"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if !VerifyNotifyreSignature(secret, body, signature) {
		t.Fatal("expected valid signature")
	}
	if VerifyNotifyreSignature(secret, body, "deadbeef") {
		t.Fatal("expected rejection of forged signature")
	}
	if VerifyNotifyreSignature("", body, signature) {
		t.Fatal("expected rejection without secret")
	}
}

func TestParseTelnyxEvent(t *testing.T) {
	body := []byte(`{
		"data": {
			"event_type": "fax.delivered",
			"id": "evt-tx-1",
			"occurred_at": "2026-08-20T10:00:00Z",
			"payload": {"fax_id": "fx_123", "status": "delivered", "page_count": 2}
		}
	}`)

	event, err := ParseTelnyxEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Provider != enums.FaxProviderTelnyx || event.ProviderFaxID != "fx_123" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Status != enums.FaxStatusDelivered || event.Pages != 2 {
		t.Fatalf("unexpected status %+v", event)
	}
}

func TestParseTelnyxEventStringPageCount(t *testing.T) {
	body := []byte(`{
		"data": {
			"event_type": "fax.delivered",
			"id": "evt-tx-2",
			"payload": {"fax_id": "fx_123", "page_count": "3"}
		}
	}`)

	event, err := ParseTelnyxEvent(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Pages != 3 {
		t.Fatalf("expected page count 3, got %d", event.Pages)
	}
}

func TestParseTelnyxEventRejectsUnknownType(t *testing.T) {
	body := []byte(`{
		"data": {
			"event_type": "call.answered",
			"id": "evt-tx-3",
			"payload": {"fax_id": "fx_123"}
		}
	}`)
	if _, err := ParseTelnyxEvent(body); err == nil {
		t.Fatal("expected error for non-fax event")
	}
}

func TestVerifyTelnyxSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	body := []byte(`{"data":{"id":"evt-tx-1"}}`)
	timestamp := "1756000000"
	signed := append([]byte(timestamp+"|"), body...)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, signed))
	publicKey := base64.StdEncoding.EncodeToString(pub)

	if !VerifyTelnyxSignature(publicKey, body, signature, timestamp) {
		t.Fatal("expected valid signature")
	}
	if VerifyTelnyxSignature(publicKey, body, signature, "1756000001") {
		t.Fatal("expected rejection for altered timestamp")
	}
	if VerifyTelnyxSignature("not-base64!!", body, signature, timestamp) {
		t.Fatal("expected rejection for bad public key")
	}
}
