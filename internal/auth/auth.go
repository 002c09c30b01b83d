// Package auth validates API keys for the write side of the registry. A key
// identifies a client and the classification source it is allowed to submit
// descriptors as; the read side is unauthenticated.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator validates an API key and returns the client's Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// Principal holds the authenticated client's identity and submission rights.
type Principal struct {
	ClientID string
	// Source is the classification source this key is bound to. Empty
	// means the key can submit as any source.
	Source string
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken extracts a tcp_ API key from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", ErrUnauthenticated
	}
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, "tcp_") {
		return "", ErrUnauthenticated
	}
	return token, nil
}
