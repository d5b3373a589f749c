package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretGetter resolves credentials stored as SecureString parameters.
// Consumers (the inference client, the access gate wiring) depend on this
// interface so they stay testable without AWS.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// tokenPayload is the optional JSON envelope for a stored secret.
type tokenPayload struct {
	Token string `json:"token"`
}

// Client wraps an AWS SSM API for secret retrieval.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client resolving names relative to prefix.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

// Name returns the fully qualified parameter name for key.
func (c *Client) Name(key string) string {
	return c.prefix + "/" + strings.TrimLeft(strings.TrimSpace(key), "/")
}

// GetParameter returns the decrypted value of the fully qualified parameter name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// GetSecret reads the parameter key under the client prefix. The stored value
// is either the bare secret or a JSON object of the form {"token":"..."}.
func (c *Client) GetSecret(ctx context.Context, key string) (string, error) {
	raw, err := c.GetParameter(ctx, c.Name(key))
	if err != nil {
		return "", err
	}
	return decodeSecret(raw)
}

func decodeSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("paramstore: unmarshal secret value as JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("paramstore: secret is empty")
	}
	return raw, nil
}
