package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"chat-gateway/internal/domain"
)

// DefaultURL is the address of a local Ollama server.
const DefaultURL = "http://localhost:11434"

// Client forwards completions to an Ollama server.
type Client struct {
	client *ollama.Client
}

// NewClient returns a Client talking to the Ollama server at base.
func NewClient(base string, httpClient *http.Client) (*Client, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{client: ollama.NewClient(u, httpClient)}, nil
}

// Complete runs a non-streaming chat and returns the final response as JSON.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("ollama: model must not be empty")
	}

	messages := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ollama.Message{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	var final *ollama.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(res ollama.ChatResponse) error {
		final = &res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}
	if final == nil {
		return nil, errors.New("ollama: no response")
	}

	body, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal response: %w", err)
	}
	return body, nil
}
