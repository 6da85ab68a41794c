// Package server provides the HTTP surface of the auth gateway: the OAuth2
// login and callback endpoints, session refresh, logout, and the route guard.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/campuskit/authgate/internal/identity"
	"github.com/campuskit/authgate/internal/provider"
	"github.com/campuskit/authgate/internal/shared/errors"
	"github.com/campuskit/authgate/internal/shared/events"
	"github.com/campuskit/authgate/internal/shared/logger"
	"github.com/campuskit/authgate/internal/shared/metrics"
	"github.com/campuskit/authgate/internal/shared/tracing"
	"github.com/campuskit/authgate/internal/state"
	"github.com/campuskit/authgate/internal/token"
)

// Config holds the server dependencies.
type Config struct {
	Providers *provider.Registry
	Tokens    *token.Service
	Resolver  identity.Resolver // optional; nil disables the sub claim
	Cookies   *CookieManager
	Events    *events.Client // optional
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// Server implements the gateway's HTTP handlers. Every handler is stateless
// per request; the identity store transaction is the only shared mutable
// resource behind it.
type Server struct {
	providers *provider.Registry
	tokens    *token.Service
	resolver  identity.Resolver
	cookies   *CookieManager
	events    *events.Client
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates the server.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		providers: cfg.Providers,
		tokens:    cfg.Tokens,
		resolver:  cfg.Resolver,
		cookies:   cfg.Cookies,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       log,
	}
}

// Routes registers the auth endpoints on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login/{provider}", s.handleLogin)
	mux.HandleFunc("GET /auth/callback/{provider}", s.handleCallback)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /auth/logout", s.handleLogout)
	return mux
}

// handleLogin redirects the browser to the provider's consent screen. The
// entire continuation is carried in the state parameter; nothing is stored
// locally.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := s.providers.Get(r.PathValue("provider"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	returnURL := r.URL.Query().Get("returnUrl")
	if returnURL == "" {
		returnURL = state.DefaultReturnURL
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(p.Name())
	}

	authURL := p.AuthCodeURL(state.Encode(state.State{ReturnURL: returnURL}))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes the authorization-code flow: exchanges the code,
// fetches the identity, resolves the internal user, mints both tokens, sets
// cookies, and redirects to the decoded return URL.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := s.providers.Get(r.PathValue("provider"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.recordCallback(p.Name(), "invalid")
		s.writeError(w, r, errors.InvalidInput("missing authorization code"))
		return
	}

	// A malformed state is not fatal: the flow continues to the default
	// destination.
	returnURL := state.ReturnURLOrDefault(r.URL.Query().Get("state"))

	claims, err := s.authenticate(ctx, p, code)
	if err != nil {
		s.recordCallback(p.Name(), "error")
		s.writeError(w, r, err)
		return
	}

	if err := s.issueTokens(w, *claims); err != nil {
		s.recordCallback(p.Name(), "error")
		s.writeError(w, r, err)
		return
	}

	s.recordCallback(p.Name(), "success")
	s.publishEvent(ctx, "user.login", claims.Subject, map[string]any{
		"email":    claims.Email,
		"provider": claims.Provider,
	})

	http.Redirect(w, r, returnURL, http.StatusFound)
}

// authenticate runs the server-to-server half of the flow and returns the
// claim set to sign.
func (s *Server) authenticate(ctx context.Context, p provider.Provider, code string) (*token.Claims, error) {
	ctx, span := tracing.Start(ctx, "provider.exchange")
	accessToken, err := p.Exchange(ctx, code)
	span.End()
	if err != nil {
		return nil, errors.OAuthExchangeWrap("exchanging authorization code", err)
	}

	ident, err := p.Identity(ctx, accessToken)
	if err != nil {
		return nil, errors.OAuthExchangeWrap("fetching identity", err)
	}
	if ident.Email == "" {
		return nil, errors.IdentityResolution("provider returned no email")
	}

	claims := &token.Claims{
		Email:    ident.Email,
		Name:     ident.Name,
		Picture:  ident.Picture,
		Provider: ident.Provider,
	}

	if s.resolver != nil {
		ctx, span := tracing.Start(ctx, "identity.resolve")
		userID, err := s.resolver.Resolve(ctx, ident.Email)
		span.End()
		if err != nil {
			return nil, err
		}
		claims.Subject = userID
	}

	return claims, nil
}

// issueTokens signs both token kinds from the same claim set and applies
// the cookies.
func (s *Server) issueTokens(w http.ResponseWriter, claims token.Claims) error {
	session, sessionExp, err := s.tokens.Sign(token.KindSession, claims)
	if err != nil {
		return errors.InternalWrap("signing session token", err)
	}
	refresh, refreshExp, err := s.tokens.Sign(token.KindRefresh, claims)
	if err != nil {
		return errors.InternalWrap("signing refresh token", err)
	}

	s.cookies.SetSession(w, session, sessionExp)
	s.cookies.SetRefresh(w, refresh, refreshExp)
	return nil
}

// refreshResponse is the JSON body returned by the refresh endpoint.
type refreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleRefresh rotates the session token from a valid refresh token. The
// refresh token itself is not rotated: its validity window is fixed at
// issuance regardless of use.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		s.recordRefresh("missing")
		s.writeError(w, r, errors.InvalidRefreshToken("missing refresh token"))
		return
	}

	claims, err := s.tokens.Verify(token.KindRefresh, cookie.Value)
	if err != nil {
		s.recordRefresh("unauthorized")
		s.writeError(w, r, errors.InvalidRefreshToken("invalid or expired refresh token").Wrap(err))
		return
	}

	// Drop the refresh token's temporal claims so the new session token
	// gets a fresh lifetime.
	token.StripTemporal(claims)

	session, expiresAt, err := s.tokens.Sign(token.KindSession, *claims)
	if err != nil {
		s.recordRefresh("error")
		s.writeError(w, r, errors.InternalWrap("signing session token", err))
		return
	}

	s.cookies.SetSession(w, session, expiresAt)
	s.recordRefresh("success")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(refreshResponse{Token: session, ExpiresAt: expiresAt})
}

// handleLogout clears both cookies and redirects home. The server keeps no
// revocation list; token validity is governed solely by signature and expiry.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.cookies.Clear(w)
	s.publishEvent(r.Context(), "user.logout", "", nil)
	http.Redirect(w, r, "/", http.StatusFound)
}

// writeError renders a coded error without leaking provider details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.WithContext(r.Context()).Error("auth request failed",
			"error", err,
			"path", r.URL.Path,
		)
	} else {
		s.log.WithContext(r.Context()).Warn("auth request rejected",
			"error", err,
			"path", r.URL.Path,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(errors.CodeOf(err)),
		"message": http.StatusText(status),
	})
}

func (s *Server) recordCallback(provider, status string) {
	if s.metrics != nil {
		s.metrics.RecordCallback(provider, status)
	}
}

func (s *Server) recordRefresh(status string) {
	if s.metrics != nil {
		s.metrics.RecordRefresh(status)
	}
}

// publishEvent publishes a lifecycle event if a broker is configured.
// Fire and forget: event delivery never blocks or fails a request.
func (s *Server) publishEvent(ctx context.Context, eventType, userID string, data map[string]any) {
	if s.events == nil || !s.events.IsConnected() {
		return
	}
	go func() {
		_ = s.events.PublishAuthEvent(context.Background(), eventType, userID, data)
	}()
}
