package geminilive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/haivivi/geminilive/pkg/tokencache"
)

// CloudPlatformScope is the OAuth scope used for Vertex AI.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Authenticator supplies a credential on demand. It is called before every
// dial, so implementations may refresh.
type Authenticator interface {
	Credential(ctx context.Context) (string, error)
}

// APIKey authenticates with a static Gemini API key.
type APIKey string

func (k APIKey) Credential(context.Context) (string, error) {
	if k == "" {
		return "", errors.New("geminilive: empty API key")
	}
	return string(k), nil
}

// TokenSourceAuthenticator authenticates with OAuth access tokens. Tokens
// are cached in Cache, when set, until shortly before they expire.
type TokenSourceAuthenticator struct {
	Source oauth2.TokenSource
	Cache  tokencache.Store
	Key    string

	// Leeway is how long before expiry a cached token is considered stale.
	// Zero means one minute.
	Leeway time.Duration
}

func (a *TokenSourceAuthenticator) Credential(ctx context.Context) (string, error) {
	leeway := a.Leeway
	if leeway == 0 {
		leeway = time.Minute
	}
	key := a.Key
	if key == "" {
		key = "default"
	}

	if a.Cache != nil {
		tok, err := a.Cache.Get(ctx, key)
		switch {
		case err == nil && tok.Valid(leeway):
			return tok.Value, nil
		case err != nil && !errors.Is(err, tokencache.ErrNotFound):
			slog.Warn("geminilive: token cache read failed", "key", key, "error", err)
		}
	}

	if a.Source == nil {
		return "", errors.New("geminilive: no token source")
	}
	t, err := a.Source.Token()
	if err != nil {
		return "", fmt.Errorf("geminilive: fetch access token: %w", err)
	}
	if a.Cache != nil && !t.Expiry.IsZero() {
		if err := a.Cache.Set(ctx, key, tokencache.Token{Value: t.AccessToken, Expiry: t.Expiry}); err != nil {
			slog.Warn("geminilive: token cache write failed", "key", key, "error", err)
		}
	}
	return t.AccessToken, nil
}

// NewGoogleAuthenticator uses Application Default Credentials. cache may be
// nil.
func NewGoogleAuthenticator(ctx context.Context, cache tokencache.Store) (*TokenSourceAuthenticator, error) {
	ts, err := google.DefaultTokenSource(ctx, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("geminilive: default credentials: %w", err)
	}
	return &TokenSourceAuthenticator{
		Source: oauth2.ReuseTokenSource(nil, ts),
		Cache:  cache,
		Key:    "google-adc",
	}, nil
}
