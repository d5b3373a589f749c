package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat-gateway/internal/domain"
)

const (
	// DefaultBaseURL is the Hugging Face inference router.
	DefaultBaseURL = "https://router.huggingface.co"

	// TokenKey is the parameter-store key holding the Hugging Face token.
	TokenKey = "huggingface-token"

	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 4 << 20
)

// ErrResponseTooLarge is returned when a completion body exceeds the read limit.
var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)

// chatRequest is the body sent to the provider's chat completions route.
type chatRequest struct {
	Model     string               `json:"model"`
	Messages  []domain.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

type SecretGetter interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the Hugging Face inference router's
// OpenAI-compatible chat completion routes.
type Client struct {
	baseURL    string
	httpClient *http.Client

	staticKey string
	secrets   SecretGetter

	timeout    time.Duration
	hasTimeout bool

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the total timeout of every upstream call. Zero disables it.
// It applies to the client given by WithHTTPClient regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.hasTimeout = true
	}
}

// WithAPIKey uses a fixed API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// WithSecretGetter resolves the API key from the parameter store on the first
// call. It is ignored when a static key is also configured.
func WithSecretGetter(g SecretGetter) Option {
	return func(c *Client) {
		c.secrets = g
	}
}

// NewClient creates a Client. Either a static key or a secret getter is required.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.hasTimeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.staticKey == "" && c.secrets == nil {
		return nil, errors.New("inference: an API key or secret getter is required")
	}
	return c, nil
}

// resolveAPIKey returns the static key, or fetches the key from the parameter
// store. Only a successful fetch is cached; a failed one is retried on the
// next call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.staticKey != "" {
		return c.staticKey, nil
	}
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.secrets.GetSecret(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("inference: fetch token: %w", err)
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// chatURL builds the provider-scoped route. Without a provider the router's
// generic OpenAI-compatible route is used.
func chatURL(baseURL, provider, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	provider = strings.Trim(strings.TrimSpace(provider), "/")
	if provider == "" {
		return base + "/v1/chat/completions"
	}
	return base + "/" + url.PathEscape(provider) + "/models/" + escapeModel(model) + "/v1/chat/completions"
}

// escapeModel escapes each segment of an "org/name" model identifier.
func escapeModel(model string) string {
	parts := strings.Split(strings.Trim(model, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Complete forwards req and returns the provider's completion object as raw JSON.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("inference: model must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: marshal request: %w", err)
	}

	endpoint := chatURL(c.baseURL, req.Provider, req.Model)

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("inference: create request: %w", reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(httpReq, endpoint)
	if err != nil {
		return nil, fmt.Errorf("inference: request failed: %w", err)
	}
	if !json.Valid(raw) {
		return nil, errors.New("inference: decode response: body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(buf) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return buf, nil
}
