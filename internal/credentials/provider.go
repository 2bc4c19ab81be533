// Package credentials supplies bearer tokens to the submission workflow.
// Every provider is asked again before each network call.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kingrea/save-the-trash/internal/config"
)

// ErrNoToken means the user is not signed in.
var ErrNoToken = errors.New("credentials: no token available")

// Provider yields a bearer token on demand.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

type staticProvider struct {
	token string
}

// Static always returns token. An empty token yields ErrNoToken.
func Static(token string) Provider {
	return staticProvider{token: strings.TrimSpace(token)}
}

func (p staticProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}

type fileProvider struct {
	path string
}

// File reads the token from path on every call, so a separate login tool can
// refresh it while the app is running.
func File(path string) Provider {
	return fileProvider{path: path}
}

func (p fileProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoToken, p.path)
		}
		return "", fmt.Errorf("credentials: read %s: %w", p.path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, p.path)
	}
	return token, nil
}

// FromConfig builds the provider selected by the credentials section.
func FromConfig(cfg config.CredentialsConfig) (Provider, error) {
	switch cfg.Source {
	case config.SourceStatic, "":
		return Static(cfg.Token), nil
	case config.SourceFile:
		if cfg.TokenFile == "" {
			return nil, fmt.Errorf("credentials: token file is required")
		}
		return File(cfg.TokenFile), nil
	case config.SourceOAuth2:
		p, err := NewOAuth2(ClientCredentials{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Audience:     cfg.OAuth2.Audience,
			Scopes:       cfg.OAuth2.Scopes,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("credentials: unknown source %q", cfg.Source)
	}
}
