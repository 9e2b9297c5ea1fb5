package notifyre

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.notifyre.com"
	responseBodyReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("notifyre api key is required")

// Client wraps the Notifyre fax API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Notifyre base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout overrides the default HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the Notifyre client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// SendFaxRequest describes one outbound fax submission.
type SendFaxRequest struct {
	Recipient   string
	DocumentURL string
	Reference   string
	Header      string
}

// SendFaxResult carries the provider identifiers for a queued fax.
type SendFaxResult struct {
	FaxID        string
	FriendlyID   string
}

// SendFax submits a fax for delivery and returns the provider's job ID.
func (c *Client) SendFax(ctx context.Context, req SendFaxRequest) (*SendFaxResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifyre client not configured")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if strings.TrimSpace(req.DocumentURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document url is required")
	}

	payload, err := json.Marshal(map[string]any{
		"Faxes": map[string]any{
			"Recipients": []map[string]string{
				{"Type": "fax_number", "Value": req.Recipient},
			},
			"ClientReference": req.Reference,
			"Header":          req.Header,
			"Documents": []map[string]string{
				{"URL": req.DocumentURL},
			},
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal send fax request")
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/fax/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build send fax request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute send fax request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "send fax request failed")
	}

	var apiResp struct {
		Payload struct {
			FaxID      string `json:"faxID"`
			FriendlyID string `json:"friendlyID"`
		} `json:"payload"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode send fax response")
	}
	if !apiResp.Success || apiResp.Payload.FaxID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifyre rejected the fax submission")
	}

	return &SendFaxResult{
		FaxID:      apiResp.Payload.FaxID,
		FriendlyID: apiResp.Payload.FriendlyID,
	}, nil
}
