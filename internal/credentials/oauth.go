package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a token request that no caller can cancel on its own.
const fetchTimeout = 30 * time.Second

// ClientCredentials configures an OAuth2 client-credentials grant. Audience
// is sent as an extra form field, which Auth0 requires.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Audience     string
	Scopes       []string
	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

// OAuth2Provider fetches access tokens from a token endpoint. A token is
// reused only while oauth2 considers it valid; concurrent refreshes share a
// single request.
type OAuth2Provider struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	group      singleflight.Group

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuth2 validates settings and returns a provider.
func NewOAuth2(cc ClientCredentials) (*OAuth2Provider, error) {
	if strings.TrimSpace(cc.ClientID) == "" {
		return nil, fmt.Errorf("credentials: oauth2 client id is required")
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cc.TokenURL)); err != nil {
		return nil, fmt.Errorf("credentials: oauth2 token url: %w", err)
	}
	cfg := clientcredentials.Config{
		ClientID:     strings.TrimSpace(cc.ClientID),
		ClientSecret: cc.ClientSecret,
		TokenURL:     strings.TrimSpace(cc.TokenURL),
		Scopes:       cc.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if aud := strings.TrimSpace(cc.Audience); aud != "" {
		cfg.EndpointParams = url.Values{"audience": {aud}}
	}
	return &OAuth2Provider{cfg: cfg, httpClient: cc.HTTPClient}, nil
}

// Token returns a valid access token, fetching a new one when needed.
func (p *OAuth2Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()
	if current.Valid() {
		return current.AccessToken, nil
	}

	ch := p.group.DoChan("token", func() (any, error) {
		// The fetch is shared, so one caller canceling must not fail the rest.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		if p.httpClient != nil {
			fetchCtx = context.WithValue(fetchCtx, oauth2.HTTPClient, p.httpClient)
		}
		tok, err := p.cfg.Token(fetchCtx)
		if err != nil {
			return nil, err
		}
		// Tokens without an expiry are never cached.
		if !tok.Expiry.IsZero() {
			p.mu.Lock()
			p.token = tok
			p.mu.Unlock()
		}
		return tok, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("credentials: oauth2 token: %w", res.Err)
		}
		return res.Val.(*oauth2.Token).AccessToken, nil
	}
}

// Invalidate forgets the cached token so the next call fetches a new one.
func (p *OAuth2Provider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}
