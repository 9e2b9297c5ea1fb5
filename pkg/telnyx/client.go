package telnyx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/faxpilot/faxpilot-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.telnyx.com"
	responseBodyReadLimit int64 = 1024
)

var errAPIKeyRequired = errors.New("telnyx api key is required")

// Client wraps the Telnyx number lookup API.
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

// WithBaseURL overrides the configured Telnyx base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the Telnyx client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// NumberLookupResult is the normalized carrier/portability data returned by
// the number lookup API.
type NumberLookupResult struct {
	PhoneNumber string
	CountryCode string
	CarrierName string
	LineType    string
	Ported      bool
	LRN         string
	SPID        string
	OCN         string
}

// NumberLookup fetches carrier and portability data for an E.164 number.
func (c *Client) NumberLookup(ctx context.Context, e164 string) (*NumberLookupResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "telnyx client not configured")
	}
	trimmed := strings.TrimSpace(e164)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}

	endpoint := fmt.Sprintf("%s/v2/number_lookup/%s?type=carrier", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build number lookup request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute number lookup request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "number lookup request failed")
	}

	var apiResp struct {
		Data struct {
			PhoneNumber string `json:"phone_number"`
			CountryCode string `json:"country_code"`
			Carrier     struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"carrier"`
			Portability struct {
				LRN          string `json:"lrn"`
				PortedStatus string `json:"ported_status"`
				SPID         string `json:"spid"`
				OCN          string `json:"ocn"`
			} `json:"portability"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode number lookup response")
	}

	return &NumberLookupResult{
		PhoneNumber: apiResp.Data.PhoneNumber,
		CountryCode: apiResp.Data.CountryCode,
		CarrierName: apiResp.Data.Carrier.Name,
		LineType:    apiResp.Data.Carrier.Type,
		Ported:      strings.EqualFold(apiResp.Data.Portability.PortedStatus, "ported"),
		LRN:         apiResp.Data.Portability.LRN,
		SPID:        apiResp.Data.Portability.SPID,
		OCN:         apiResp.Data.Portability.OCN,
	}, nil
}
