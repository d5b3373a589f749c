package gate

import (
	"errors"
	"strings"
)

const (
	// DefaultHeader is the request header carrying the caller's API key.
	DefaultHeader = "api-key"

	// RejectionMessage is the fixed error body returned on a failed check.
	RejectionMessage = "Invalid API token"
)

// Gate compares a request credential against a single configured secret.
type Gate struct {
	header string
	secret string
}

// New creates a Gate reading the given header. An empty secret is allowed
// and rejects every request.
func New(header, secret string) (*Gate, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, errors.New("gate: header name must not be empty")
	}
	return &Gate{header: header, secret: secret}, nil
}

// Header returns the name of the credential header.
func (g *Gate) Header() string {
	return g.header
}

// Allow reports whether value matches the configured secret. Missing values
// never match.
func (g *Gate) Allow(value string) bool {
	if value == "" {
		return false
	}
	return value == g.secret
}
