package provider

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// KeycloakConfig holds Keycloak OAuth configuration. RealmURL is the base
// realm URL, e.g. https://sso.example.com/realms/campus.
type KeycloakConfig struct {
	RealmURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Keycloak implements Provider for a Keycloak realm. Keycloak is
// OIDC-compliant, so the endpoints follow the standard layout under the
// realm URL and the identity comes from the shared userinfo fetch.
type Keycloak struct {
	config      *oauth2.Config
	userinfoURL string
}

// NewKeycloak creates a Keycloak provider for a realm.
func NewKeycloak(cfg KeycloakConfig) *Keycloak {
	base := strings.TrimRight(cfg.RealmURL, "/")

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	return &Keycloak{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/protocol/openid-connect/auth",
				TokenURL: base + "/protocol/openid-connect/token",
			},
		},
		userinfoURL: base + "/protocol/openid-connect/userinfo",
	}
}

// Name returns the provider code.
func (p *Keycloak) Name() string {
	return "keycloak"
}

// AuthCodeURL returns the realm's authorization URL.
func (p *Keycloak) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for an access token.
func (p *Keycloak) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return token, nil
}

// Identity fetches the authenticated identity from the realm's userinfo endpoint.
func (p *Keycloak) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	return fetchOIDCIdentity(ctx, p.config, p.userinfoURL, "keycloak", token)
}
