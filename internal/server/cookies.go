package server

import (
	"net/http"
	"time"
)

// Cookie names for the two token classes.
const (
	// SessionCookieName carries the short-lived session token. It is
	// deliberately not HttpOnly: the client runtime reads its expiry
	// locally to decide when to refresh.
	SessionCookieName = "authgate_session"
	// RefreshCookieName carries the long-lived refresh token, inaccessible
	// to client-side code.
	RefreshCookieName = "authgate_refresh"
)

// CookieManager applies and clears the two token cookies with the correct
// security attributes.
type CookieManager struct {
	secure bool
}

// NewCookieManager creates a cookie manager. secure marks the refresh
// cookie Secure and should be set when the deployment terminates HTTPS.
func NewCookieManager(secure bool) *CookieManager {
	return &CookieManager{secure: secure}
}

// SetSession sets the session cookie.
func (c *CookieManager) SetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetRefresh sets the refresh cookie.
func (c *CookieManager) SetRefresh(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires both cookies, preserving their attribute shapes.
func (c *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
