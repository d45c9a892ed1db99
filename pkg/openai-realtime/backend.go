package openairealtime

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
)

// ErrNoAccessToken is returned when the backend client has no user token.
var ErrNoAccessToken = errors.New("openai-realtime: no access token")

// BackendClient talks to our own backend: it fetches ephemeral credentials
// from /session and relays SDP offers through /realtime. It implements
// Signaler; the credential argument is unused because the backend attaches
// the server key itself.
type BackendClient struct {
	baseURL    string
	token      func() string
	model      string
	httpClient *http.Client
}

var _ Signaler = (*BackendClient)(nil)

// BackendOption configures a BackendClient.
type BackendOption func(*BackendClient)

// WithAccessToken sets a static bearer token.
func WithAccessToken(token string) BackendOption {
	return func(c *BackendClient) { c.token = func() string { return token } }
}

// WithTokenSource sets a function returning the current bearer token.
func WithTokenSource(fn func() string) BackendOption {
	return func(c *BackendClient) { c.token = fn }
}

// WithModel sets the realtime model passed to /realtime.
func WithModel(model string) BackendOption {
	return func(c *BackendClient) { c.model = model }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) BackendOption {
	return func(c *BackendClient) { c.httpClient = hc }
}

// NewBackendClient returns a client for the backend at baseURL.
func NewBackendClient(baseURL string, opts ...BackendOption) *BackendClient {
	c := &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      func() string { return "" },
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCredential calls GET /session.
func (c *BackendClient) FetchCredential(ctx context.Context) (Credential, error) {
	token := c.token()
	if token == "" {
		return Credential{}, stepError(StepCredential, ErrNoAccessToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return Credential{}, stepError(StepCredential, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, stepError(StepCredential, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Credential{}, stepError(StepCredential, httpError(resp, "session_failed"))
	}

	var sr SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Credential{}, stepError(StepCredential, fmt.Errorf("decode session: %w", err))
	}
	if sr.ClientSecret.Value == "" {
		return Credential{}, stepError(StepCredential, errors.New("session response has no client secret"))
	}
	return sr.Credential(), nil
}

// ExchangeSDP calls POST /realtime?model=.
func (c *BackendClient) ExchangeSDP(ctx context.Context, _ Credential, offer string) (string, error) {
	token := c.token()
	if token == "" {
		return "", ErrNoAccessToken
	}
	u := c.baseURL + "/realtime?model=" + url.QueryEscape(c.model)
	return postSDP(ctx, c.httpClient, u, token, offer)
}

func postSDP(ctx context.Context, hc *http.Client, u, bearer, offer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(offer))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", httpError(resp, "sdp_exchange_failed")
	}
	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return string(answer), nil
}

// httpError turns a non-success response into an *Error. JSON error bodies
// of the form {"error": ...} are unpacked.
func httpError(resp *http.Response, code string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil {
		if e := decodeEventError(wrapped.Error); e != nil {
			e.HTTPStatus = resp.StatusCode
			if e.Code == "" {
				e.Code = code
			}
			return e
		}
	}
	return &Error{Code: code, Message: strings.TrimSpace(string(body)), HTTPStatus: resp.StatusCode}
}
