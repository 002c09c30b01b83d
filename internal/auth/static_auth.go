package auth

import (
	"context"
)

// StaticAuthenticator is a development-only authenticator that accepts any
// tcp_ key and binds it to no particular source.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Principal, error) {
	if len(token) < 8 {
		return nil, ErrUnauthenticated
	}
	return &Principal{
		ClientID: "static-" + token[:8],
	}, nil
}
