package restapi

import (
	"context"
	"fmt"
	"net/http"
)

// TokenSource reports the current session token. An empty token means the
// user is signed out and requests go out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// authTransport attaches the bearer token to every request.
type authTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.base.RoundTrip(req)
	}
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	if token == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(r)
}
