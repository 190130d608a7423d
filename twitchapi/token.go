package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/twitch"
)

// TokenProvider returns a bearer token for Helix calls.
type TokenProvider interface {
	Get(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Get(ctx context.Context) (string, error) { return f(ctx) }

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// App tokens can resolve users but cannot update redemptions or join chat; those need
// the broadcaster's user token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// TokenURL overrides the Twitch token endpoint.
	TokenURL string

	mu  sync.Mutex
	src oauth2.TokenSource
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.src == nil {
		if ts.ClientID == "" || ts.ClientSecret == "" {
			return "", errors.New("missing client id/secret for twitch app token")
		}
		url := ts.TokenURL
		if url == "" {
			url = twitch.Endpoint.TokenURL
		}
		cc := &clientcredentials.Config{
			ClientID:     ts.ClientID,
			ClientSecret: ts.ClientSecret,
			TokenURL:     url,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if ts.HTTPClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
		}
		// refresh a minute early
		ts.src = oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(context.WithoutCancel(ctx)), time.Minute)
	}
	tok, err := ts.src.Token()
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	return tok.AccessToken, nil
}
