package notifyre

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestClientSendFax(t *testing.T) {
	respBody := `{"payload":{"faxID":"fax_abc","friendlyID":"FAX-001"},"success":true}`

	var capturedURL string
	var capturedToken string
	var capturedBody map[string]any

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedToken = req.Header.Get("x-api-token")
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(raw, &capturedBody); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://notifyre.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.SendFax(context.Background(), SendFaxRequest{
		Recipient:   "+12125551234",
		DocumentURL: "https://files.test/doc.pdf",
		Reference:   "job-1",
	})
	if err != nil {
		t.Fatalf("send fax: %v", err)
	}
	if capturedURL != "http://notifyre.test/fax/send" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedToken != "test-token" {
		t.Fatal("api token header missing")
	}
	if capturedBody["Faxes"] == nil {
		t.Fatal("request body missing fax payload")
	}
	if result.FaxID != "fax_abc" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestClientSendFaxRejectedSubmission(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"payload":{},"success":false}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("test-token", WithBaseURL("http://notifyre.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.SendFax(context.Background(), SendFaxRequest{
		Recipient:   "+12125551234",
		DocumentURL: "https://files.test/doc.pdf",
	}); err == nil {
		t.Fatal("expected error for rejected submission")
	}
}

func TestClientSendFaxValidation(t *testing.T) {
	client, err := NewClient("test-token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.SendFax(context.Background(), SendFaxRequest{DocumentURL: "https://x"}); err == nil {
		t.Fatal("expected recipient validation error")
	}
	if _, err := client.SendFax(context.Background(), SendFaxRequest{Recipient: "+12125551234"}); err == nil {
		t.Fatal("expected document validation error")
	}
}
