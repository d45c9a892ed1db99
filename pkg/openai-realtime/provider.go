package openairealtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultProviderURL is the provider's REST base for realtime.
const DefaultProviderURL = "https://api.openai.com/v1/realtime"

// ProviderClient calls the provider with the server API key. The backend
// uses it to mint sessions and relay SDP; it can also act as a Signaler for
// direct connections with an ephemeral credential.
type ProviderClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

var _ Signaler = (*ProviderClient)(nil)

// ProviderOption configures a ProviderClient.
type ProviderOption func(*ProviderClient)

// WithProviderURL overrides the provider base URL.
func WithProviderURL(u string) ProviderOption {
	return func(c *ProviderClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithProviderHTTPClient sets the HTTP client.
func WithProviderHTTPClient(hc *http.Client) ProviderOption {
	return func(c *ProviderClient) { c.httpClient = hc }
}

// WithProviderModel sets the model used by ExchangeSDP as a Signaler.
func WithProviderModel(model string) ProviderOption {
	return func(c *ProviderClient) { c.model = model }
}

// NewProviderClient returns a provider client authenticating with apiKey.
func NewProviderClient(apiKey string, opts ...ProviderOption) *ProviderClient {
	c := &ProviderClient{
		apiKey:     apiKey,
		baseURL:    DefaultProviderURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession calls POST /sessions and returns the minted session.
func (c *ProviderClient) CreateSession(ctx context.Context, sr *SessionRequest) (*SessionResponse, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp, "session_creation_failed")
	}

	var out SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &out, nil
}

// RelaySDP posts offer to the provider with the server key and returns the
// answer verbatim.
func (c *ProviderClient) RelaySDP(ctx context.Context, model, offer string) (string, error) {
	if model == "" {
		model = c.model
	}
	return postSDP(ctx, c.httpClient, c.baseURL+"?model="+url.QueryEscape(model), c.apiKey, offer)
}

// ExchangeSDP posts offer authenticated by the ephemeral credential.
func (c *ProviderClient) ExchangeSDP(ctx context.Context, cred Credential, offer string) (string, error) {
	if cred.Value == "" {
		return "", errors.New("openai-realtime: empty credential")
	}
	return postSDP(ctx, c.httpClient, c.baseURL+"?model="+url.QueryEscape(c.model), cred.Value, offer)
}
