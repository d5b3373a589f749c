package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-gateway/internal/domain"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base     string
		provider string
		model    string
		want     string
	}{
		{"https://router.huggingface.co", "hf-inference", "org/model", "https://router.huggingface.co/hf-inference/models/org/model/v1/chat/completions"},
		{"https://router.huggingface.co/", "hf-inference", "org/model", "https://router.huggingface.co/hf-inference/models/org/model/v1/chat/completions"},
		{"", "hf-inference", "org/model", "https://router.huggingface.co/hf-inference/models/org/model/v1/chat/completions"},
		{"http://localhost:8080", "", "org/model", "http://localhost:8080/v1/chat/completions"},
		{"http://localhost:8080", "hf-inference", "org/model name", "http://localhost:8080/hf-inference/models/org/model%20name/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base, tc.provider, tc.model), "base=%q provider=%q", tc.base, tc.provider)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_RequiresKeySource(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(WithAPIKey("hf_test"))
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, defaultTimeout, c.httpClient.Timeout)
}

func TestNewClient_WithTimeoutAppliesToCustomClient(t *testing.T) {
	transport := &http.Transport{}
	for _, opts := range [][]Option{
		{WithTimeout(3 * time.Second), WithHTTPClient(&http.Client{Transport: transport})},
		{WithHTTPClient(&http.Client{Transport: transport}), WithTimeout(3 * time.Second)},
	} {
		c, err := NewClient(append(opts, WithAPIKey("hf_test"))...)
		require.NoError(t, err)
		require.Equal(t, 3*time.Second, c.httpClient.Timeout)
		require.Same(t, transport, c.httpClient.Transport)
	}
}

func TestNewClient_WithTimeoutZeroDisablesTimeout(t *testing.T) {
	c, err := NewClient(WithAPIKey("hf_test"), WithTimeout(0))
	require.NoError(t, err)
	require.Zero(t, c.httpClient.Timeout)
}

// ---------------------------------------------------------------------------
// resolveAPIKey
// ---------------------------------------------------------------------------

// fakeSecrets is a minimal SecretGetter stub for use within this package.
// errs are returned, in order, before val is.
type fakeSecrets struct {
	val    string
	err    error
	errs   []error
	calls  int
	gotKey string
}

func (f *fakeSecrets) GetSecret(_ context.Context, key string) (string, error) {
	f.calls++
	f.gotKey = key
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return f.val, f.err
}

func TestResolveAPIKey_StaticWins(t *testing.T) {
	g := &fakeSecrets{val: "from-ssm"}
	c, err := NewClient(WithAPIKey("static"), WithSecretGetter(g))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "static", key)
	require.Zero(t, g.calls)
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	g := &fakeSecrets{val: "hf_from_ssm"}
	c, err := NewClient(WithSecretGetter(g))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hf_from_ssm", key)
	require.Equal(t, TokenKey, g.gotKey)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, g.calls, "parameter store must only be called once per process lifetime")
}

func TestResolveAPIKey_RetriesAfterFailure(t *testing.T) {
	g := &fakeSecrets{val: "hf_from_ssm", errs: []error{errors.New("throttled")}}
	c, err := NewClient(WithSecretGetter(g))
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "throttled")

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hf_from_ssm", key)

	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 2, g.calls)
}

func TestClient_Complete_RecoversFromTokenFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer hf_from_ssm", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	g := &fakeSecrets{val: "hf_from_ssm", errs: []error{errors.New("transient")}}
	c, err := NewClient(WithSecretGetter(g), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), testRequest())
	require.ErrorContains(t, err, "transient")

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(resp))
}

func TestResolveAPIKey_Error(t *testing.T) {
	c, err := NewClient(WithSecretGetter(&fakeSecrets{err: errors.New("ssm unavailable")}))
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")
	require.ErrorContains(t, err, "fetch token")
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		WithAPIKey("hf_test"),
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func testRequest() domain.CompletionRequest {
	return domain.CompletionRequest{
		Model:     "org/model",
		Provider:  "hf-inference",
		MaxTokens: 500,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "system", Content: "hi"},
		},
	}
}

func TestClient_Complete_HappyPath(t *testing.T) {
	const upstream = `{"id":"chatcmpl-123","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello from mock"}}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hf-inference/models/org/model/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"model":"org/model",
			"max_tokens":500,
			"messages":[{"role":"system","content":"be brief"},{"role":"system","content":"hi"}]
		}`, string(reqBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(upstream))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, upstream, string(resp))
}

func TestClient_Complete_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
	require.Contains(t, err.Error(), "400")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 400, statusErr.HTTPStatusCode())
}

func TestClient_Complete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
}

func TestClient_Complete_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv)
	_, err := c.Complete(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c, err := NewClient(WithAPIKey("hf_test"))
	require.NoError(t, err)
	c.baseURL = "http://127.0.0.1:1"
	c.httpClient = &http.Client{Timeout: 100 * time.Millisecond}

	_, err = c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Complete_EmptyModel(t *testing.T) {
	c, err := NewClient(WithAPIKey("hf_test"))
	require.NoError(t, err)
	req := testRequest()
	req.Model = ""
	_, err = c.Complete(context.Background(), req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestClient_Complete_KeyErrorSkipsRequest(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c, err := NewClient(WithSecretGetter(&fakeSecrets{err: errors.New("denied")}), WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testRequest())
	require.ErrorContains(t, err, "denied")
	require.Zero(t, hits)
}

func TestClient_Complete_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		big := `{"pad":"` + strings.Repeat("a", maxResponseBytes) + `"}`
		_, _ = w.Write([]byte(big))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrResponseTooLarge)
	require.NotContains(t, err.Error(), "not valid JSON")
}

func TestClient_Complete_500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "model loading")
}

func TestClient_Complete_ResponseIsRawMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	var decoded struct {
		Choices []struct {
			Message domain.ChatMessage `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.Equal(t, "ok", decoded.Choices[0].Message.Content)
}
