package webhooks

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faxpilot/faxpilot-backend/pkg/config"
	"github.com/faxpilot/faxpilot-backend/pkg/enums"
	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

func telnyxBody(eventID string) string {
	return fmt.Sprintf(`{"data":{"event_type":"fax.delivered","id":%q,"occurred_at":"2026-08-23T10:00:00Z","payload":{"fax_id":"fax-tx-7","status":"delivered","page_count":4}}}`, eventID)
}

func signTelnyx(t *testing.T, priv ed25519.PrivateKey, timestamp string, body []byte) string {
	t.Helper()
	sig := ed25519.Sign(priv, append([]byte(timestamp+"|"), body...))
	return base64.StdEncoding.EncodeToString(sig)
}

func TestTelnyxWebhookHandlesSignedEvent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	svc := &fakeDeliveryService{}
	cfg := config.WebhooksConfig{
		TelnyxPublicKey: base64.StdEncoding.EncodeToString(pub),
		IdempotencyTTL:  time.Hour,
	}
	handler := TelnyxWebhook(svc, cfg, newFakeGuard(), nil)

	body := telnyxBody("tx-evt-1")
	timestamp := "1755950400"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/telnyx", strings.NewReader(body))
	req.Header.Set(telnyxSignatureHeader, signTelnyx(t, priv, timestamp, []byte(body)))
	req.Header.Set(telnyxTimestampHeader, timestamp)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected one handled event, got %d", len(svc.events))
	}
	event := svc.events[0]
	if event.ProviderFaxID != "fax-tx-7" || event.Status != enums.FaxStatusDelivered || event.Pages != 4 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestTelnyxWebhookRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	svc := &fakeDeliveryService{}
	cfg := config.WebhooksConfig{TelnyxPublicKey: base64.StdEncoding.EncodeToString(pub)}
	handler := TelnyxWebhook(svc, cfg, newFakeGuard(), nil)

	body := telnyxBody("tx-evt-2")
	timestamp := "1755950400"
	signature := signTelnyx(t, priv, timestamp, []byte(body))
	tampered := strings.Replace(body, `"page_count":4`, `"page_count":400`, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/telnyx", strings.NewReader(tampered))
	req.Header.Set(telnyxSignatureHeader, signature)
	req.Header.Set(telnyxTimestampHeader, timestamp)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if len(svc.events) != 0 {
		t.Fatal("handler must not run for tampered payloads")
	}
}

func TestTelnyxWebhookAcksOnHandlerFailure(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	svc := &fakeDeliveryService{handleErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	guard := newFakeGuard()
	cfg := config.WebhooksConfig{
		TelnyxPublicKey: base64.StdEncoding.EncodeToString(pub),
		IdempotencyTTL:  time.Hour,
	}
	handler := TelnyxWebhook(svc, cfg, guard, nil)

	body := telnyxBody("tx-evt-ack")
	timestamp := "1755950400"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/telnyx", strings.NewReader(body))
	req.Header.Set(telnyxSignatureHeader, signTelnyx(t, priv, timestamp, []byte(body)))
	req.Header.Set(telnyxTimestampHeader, timestamp)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 despite handler failure, got %d", resp.Code)
	}
	if len(guard.data) != 0 {
		t.Fatal("event claim should be released so a redelivery can re-run the handler")
	}
}

func TestTelnyxWebhookRejectsUnknownEventType(t *testing.T) {
	svc := &fakeDeliveryService{}
	handler := TelnyxWebhook(svc, config.WebhooksConfig{}, newFakeGuard(), nil)

	body := `{"data":{"event_type":"call.answered","id":"tx-evt-3","payload":{"fax_id":"fax-tx-7"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/telnyx", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
