package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultGoogleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// UserinfoURL overrides the userinfo endpoint, for tests.
	UserinfoURL string
}

// Google implements Provider for Google through the standard OIDC userinfo
// endpoint.
type Google struct {
	config      *oauth2.Config
	userinfoURL string
}

// NewGoogle creates a Google provider.
func NewGoogle(cfg GoogleConfig) *Google {
	userinfoURL := cfg.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = defaultGoogleUserinfoURL
	}

	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userinfoURL: userinfoURL,
	}
}

// Name returns the provider code.
func (p *Google) Name() string {
	return "google"
}

// AuthCodeURL returns the Google authorization URL.
func (p *Google) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for an access token.
func (p *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return token, nil
}

// Identity fetches the authenticated identity from the OIDC userinfo endpoint.
func (p *Google) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	return fetchOIDCIdentity(ctx, p.config, p.userinfoURL, "google", token)
}
