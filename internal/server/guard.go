package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/campuskit/authgate/internal/shared/metrics"
	"github.com/campuskit/authgate/internal/token"
)

// Guard redirects unauthenticated requests away from protected paths.
// The decision is pure and synchronous: a signature and expiry check on the
// session cookie, no I/O.
type Guard struct {
	tokens    *token.Service
	prefixes  []string
	loginPath string
	metrics   *metrics.Metrics
}

// NewGuard creates a route guard. protected lists path prefixes requiring a
// valid session; defaultProvider names the provider unauthenticated
// requests are sent to.
func NewGuard(tokens *token.Service, protected []string, defaultProvider string, m *metrics.Metrics) *Guard {
	return &Guard{
		tokens:    tokens,
		prefixes:  protected,
		loginPath: "/auth/login/" + defaultProvider,
		metrics:   m,
	}
}

// Protected reports whether path falls under a protected prefix.
func (g *Guard) Protected(path string) bool {
	for _, prefix := range g.prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimRight(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// Middleware gates protected paths behind a valid session cookie.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Protected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
			if _, err := g.tokens.Verify(token.KindSession, cookie.Value); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		if g.metrics != nil {
			g.metrics.RecordGuardRedirect()
		}

		target := g.loginPath + "?returnUrl=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
	})
}
