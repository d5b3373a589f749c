package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"chat-gateway/internal/domain"
)

func intPtr(n int) *int { return &n }

// chatRequestSchema describes the body accepted by the chat-completion route.
func chatRequestSchema() *jsonschema.Schema {
	nonEmptyString := func() *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", MinLength: intPtr(1)}
	}
	return &jsonschema.Schema{
		Title: "chat_request",
		Type:  "object",
		Properties: map[string]*jsonschema.Schema{
			"messages": {
				Type:     "array",
				MinItems: intPtr(1),
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"role":    nonEmptyString(),
						"content": nonEmptyString(),
					},
					Required: []string{"role", "content"},
				},
			},
		},
		Required: []string{"messages"},
	}
}

// Validator checks raw request bodies against the chat request schema.
type Validator struct {
	resolved *jsonschema.Resolved
}

// NewValidator resolves the chat request schema once for reuse.
func NewValidator() (*Validator, error) {
	resolved, err := chatRequestSchema().Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("usecase: resolve chat request schema: %w", err)
	}
	return &Validator{resolved: resolved}, nil
}

// Decode validates body and decodes it into a ChatRequest. Every failure is
// an *Error with code ErrorInvalidInput.
func (v *Validator) Decode(body []byte) (domain.ChatRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return domain.ChatRequest{}, newError(ErrorInvalidInput, "empty_body", errors.New("body must be a JSON object"))
	}

	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return domain.ChatRequest{}, newError(ErrorInvalidInput, "malformed_json", fmt.Errorf("body is not valid JSON: %w", err))
	}
	if err := v.resolved.Validate(instance); err != nil {
		return domain.ChatRequest{}, newError(ErrorInvalidInput, "schema_violation", err)
	}

	var req domain.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.ChatRequest{}, newError(ErrorInvalidInput, "malformed_json", err)
	}
	return req, nil
}
