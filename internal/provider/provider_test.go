package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/campuskit/authgate/internal/shared/errors"
)

func TestRegistry(t *testing.T) {
	blank := NewBlank("http://localhost:8080/auth/callback/blank")

	t.Run("fallback served when empty", func(t *testing.T) {
		r := NewRegistry(blank)

		p, err := r.Get("blank")
		require.NoError(t, err)
		assert.Equal(t, "blank", p.Name())
		assert.Equal(t, "blank", r.Default().Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		r := NewRegistry(blank)
		_, err := r.Get("gitlab")
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})

	t.Run("fallback hidden once a real provider registers", func(t *testing.T) {
		r := NewRegistry(blank)
		r.Register(NewGitHub(GitHubConfig{ClientID: "id", ClientSecret: "secret"}))

		_, err := r.Get("blank")
		assert.Error(t, err)

		p, err := r.Get("github")
		require.NoError(t, err)
		assert.Equal(t, "github", p.Name())
		assert.Equal(t, "github", r.Default().Name())
	})

	t.Run("names sorted", func(t *testing.T) {
		r := NewRegistry(blank)
		r.Register(NewKeycloak(KeycloakConfig{RealmURL: "https://sso.example.com/realms/campus"}))
		r.Register(NewGitHub(GitHubConfig{}))
		r.Register(NewGoogle(GoogleConfig{}))

		assert.Equal(t, []string{"github", "google", "keycloak"}, r.Names())
		assert.Equal(t, "github", r.Default().Name())
	})
}

func TestGitHub_AuthCodeURL(t *testing.T) {
	p := NewGitHub(GitHubConfig{
		ClientID:    "client-id",
		RedirectURL: "https://gate.example.com/auth/callback/github",
	})

	raw := p.AuthCodeURL("opaque-state")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "opaque-state", u.Query().Get("state"))
	assert.Equal(t, "https://gate.example.com/auth/callback/github", u.Query().Get("redirect_uri"))
	assert.Contains(t, u.Query().Get("scope"), "user:email")
}

func TestGitHub_Identity(t *testing.T) {
	t.Run("profile email", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/user", r.URL.Path)
			_ = json.NewEncoder(w).Encode(githubUser{
				ID: 7, Login: "ada", Name: "Ada Lovelace",
				Email: "ada@example.com", AvatarURL: "https://avatars.example.com/ada",
			})
		}))
		defer srv.Close()

		p := NewGitHub(GitHubConfig{APIBaseURL: srv.URL})
		id, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "tok"})
		require.NoError(t, err)

		assert.Equal(t, "ada@example.com", id.Email)
		assert.Equal(t, "Ada Lovelace", id.Name)
		assert.Equal(t, "github", id.Provider)
	})

	t.Run("falls back to primary verified email", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user":
				_ = json.NewEncoder(w).Encode(githubUser{ID: 7, Login: "ada"})
			case "/user/emails":
				_ = json.NewEncoder(w).Encode([]githubEmail{
					{Email: "old@example.com", Primary: false, Verified: true},
					{Email: "ada@example.com", Primary: true, Verified: true},
				})
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		p := NewGitHub(GitHubConfig{APIBaseURL: srv.URL})
		id, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "tok"})
		require.NoError(t, err)

		assert.Equal(t, "ada@example.com", id.Email)
		assert.Equal(t, "ada", id.Name)
		assert.True(t, id.EmailVerified)
	})

	t.Run("API error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := NewGitHub(GitHubConfig{APIBaseURL: srv.URL})
		_, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "tok"})
		assert.Error(t, err)
	})
}

func TestGoogle_Identity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "12345",
			"email":          "ada@example.com",
			"email_verified": true,
			"name":           "Ada Lovelace",
			"picture":        "https://lh3.example.com/ada",
		})
	}))
	defer srv.Close()

	p := NewGoogle(GoogleConfig{UserinfoURL: srv.URL})
	id, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada Lovelace", id.Name)
	assert.Equal(t, "google", id.Provider)
	assert.True(t, id.EmailVerified)
}

func TestKeycloak_Endpoints(t *testing.T) {
	p := NewKeycloak(KeycloakConfig{
		RealmURL:    "https://sso.example.com/realms/campus/",
		ClientID:    "gate",
		RedirectURL: "https://gate.example.com/auth/callback/keycloak",
	})

	raw := p.AuthCodeURL("opaque-state")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/realms/campus/protocol/openid-connect/auth", u.Path)
	assert.Equal(t, "opaque-state", u.Query().Get("state"))
	assert.Contains(t, u.Query().Get("scope"), "openid")
	assert.Equal(t, "https://sso.example.com/realms/campus/protocol/openid-connect/userinfo", p.userinfoURL)
}

func TestKeycloak_Identity_PreferredUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                "u-1",
			"email":              "ada@example.com",
			"preferred_username": "ada",
		})
	}))
	defer srv.Close()

	p := NewKeycloak(KeycloakConfig{RealmURL: "https://sso.example.com/realms/campus"})
	p.userinfoURL = srv.URL

	id, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "ada", id.Name)
	assert.Equal(t, "keycloak", id.Provider)
}

func TestBlank(t *testing.T) {
	p := NewBlank("http://localhost:8080/auth/callback/blank")

	raw := p.AuthCodeURL("opaque-state")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback/blank", u.Path)
	assert.Equal(t, "blank", u.Query().Get("code"))
	assert.Equal(t, "opaque-state", u.Query().Get("state"))

	tok, err := p.Exchange(context.Background(), "blank")
	require.NoError(t, err)
	require.NotNil(t, tok)

	id, err := p.Identity(context.Background(), tok)
	require.NoError(t, err)
	assert.NotEmpty(t, id.Email)
	assert.Equal(t, "blank", id.Provider)
}
