// Package session implements the outbound OAuth-authenticated WebSocket
// connection to a remote control plane: a client-credentials token
// provider, a reconnecting socket with bounded exponential backoff, and
// JSON frame decode/dispatch against the local Registry/Facade.
package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

// defaultExpiresIn is used when a token response omits expires_in or sets
// it to a non-positive value (oauth2 surfaces this as a zero Expiry).
const defaultExpiresIn = 300 * time.Second

// earlyRefresh is how long before the token's computed expiry the cache
// is treated as stale, forcing a refresh ahead of actual expiration.
const earlyRefresh = 30 * time.Second

// maxTokenErrorBody bounds how much of a failed token response body is
// carried on the returned error.
const maxTokenErrorBody = 512

// TokenConfig configures the client-credentials grant.
type TokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	Audience     string
	Resource     string
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

func (c *cachedToken) valid() bool {
	return c != nil && time.Now().Before(c.expiresAt.Add(-earlyRefresh))
}

// TokenProvider fetches and caches an OAuth2 client-credentials bearer
// token, deduplicating concurrent refreshes with a singleflight group.
// The grant itself runs through golang.org/x/oauth2/clientcredentials,
// with audience/resource passed as EndpointParams; this type layers the
// earlyRefresh/singleflight cache policy on top of its one-shot Token call.
type TokenProvider struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client

	mu    sync.RWMutex
	token *cachedToken

	group singleflight.Group
}

// NewTokenProvider builds a TokenProvider. httpClient may be nil, in which
// case oauth2's default client is used.
func NewTokenProvider(cfg TokenConfig, httpClient *http.Client) *TokenProvider {
	params := url.Values{}
	if cfg.Audience != "" {
		params.Set("audience", cfg.Audience)
	}
	if cfg.Resource != "" {
		params.Set("resource", cfg.Resource)
	}

	var scopes []string
	if cfg.Scope != "" {
		scopes = strings.Fields(cfg.Scope)
	}

	return &TokenProvider{
		cfg: &clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			Scopes:         scopes,
			EndpointParams: params,
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

// Token returns a cached bearer token, refreshing it if it is missing or
// within earlyRefresh of its computed expiry. Concurrent callers during a
// refresh share a single in-flight request.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	cur := p.token
	p.mu.RUnlock()
	if cur.valid() {
		return cur.accessToken, nil
	}

	result, err, _ := p.group.Do("token", func() (interface{}, error) {
		p.mu.RLock()
		cur := p.token
		p.mu.RUnlock()
		if cur.valid() {
			return cur.accessToken, nil
		}
		return p.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate discards the cached token, forcing the next Token call to
// fetch a fresh one. Called after a 401/403 from the WebSocket upgrade.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}

func (p *TokenProvider) fetch(ctx context.Context) (string, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := retrieveErr.Body
			if len(body) > maxTokenErrorBody {
				body = body[:maxTokenErrorBody]
			}
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return "", cherrors.Newf(cherrors.ErrorTypeTokenRequestFailed, "token request returned status %d: %s", status, string(body))
		}
		return "", cherrors.Wrap(err, cherrors.ErrorTypeTokenRequestFailed, "token request failed")
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultExpiresIn)
	}

	p.mu.Lock()
	p.token = &cachedToken{accessToken: tok.AccessToken, expiresAt: expiresAt}
	p.mu.Unlock()

	return tok.AccessToken, nil
}
