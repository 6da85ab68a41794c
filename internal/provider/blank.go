package provider

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Blank is the no-provider fallback. It short-circuits the authorization
// flow by redirecting straight back to the gateway's own callback and
// issuing a synthetic identity, so environments with no provider configured
// still construct and sign in.
type Blank struct {
	callbackURL string
}

// NewBlank creates the fallback provider. callbackURL is the gateway's own
// callback endpoint for the "blank" code.
func NewBlank(callbackURL string) *Blank {
	return &Blank{callbackURL: callbackURL}
}

// Name returns the provider code.
func (p *Blank) Name() string {
	return "blank"
}

// AuthCodeURL skips the consent screen and returns the callback directly.
func (p *Blank) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("code", "blank")
	q.Set("state", state)
	return p.callbackURL + "?" + q.Encode()
}

// Exchange returns a synthetic token without any network call.
func (p *Blank) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{
		AccessToken: "blank",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

// Identity returns a synthetic development identity.
func (p *Blank) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	return &Identity{
		Email:         "dev@localhost",
		Name:          "Development User",
		Provider:      "blank",
		EmailVerified: true,
	}, nil
}
