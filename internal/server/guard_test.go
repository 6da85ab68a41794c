package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/authgate/internal/token"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuard_Protected(t *testing.T) {
	guard := NewGuard(newTestTokens(t), []string{"/library", "/account"}, "github", nil)

	assert.True(t, guard.Protected("/library"))
	assert.True(t, guard.Protected("/library/books/42"))
	assert.True(t, guard.Protected("/account"))
	assert.False(t, guard.Protected("/libraries"))
	assert.False(t, guard.Protected("/"))
	assert.False(t, guard.Protected("/about"))
}

func TestGuard_Middleware(t *testing.T) {
	tokens := newTestTokens(t)
	guard := NewGuard(tokens, []string{"/library"}, "github", nil)
	handler := guard.Middleware(okHandler())

	t.Run("unprotected path passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no session redirects to login with return url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/library/books?page=2", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/auth/login/github", location.Path)
		assert.Equal(t, "/library/books?page=2", location.Query().Get("returnUrl"))
	})

	t.Run("valid session passes", func(t *testing.T) {
		session, _, err := tokens.Sign(token.KindSession, token.Claims{Email: "ada@example.com"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/library", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired session redirects", func(t *testing.T) {
		expiring, err := token.NewService(token.Config{
			SessionSecret: "session-secret-for-tests",
			RefreshSecret: "refresh-secret-for-tests",
			SessionTTL:    -time.Minute,
			RefreshTTL:    time.Hour,
		})
		require.NoError(t, err)

		session, _, err := expiring.Sign(token.KindSession, token.Claims{Email: "ada@example.com"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/library", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
	})

	t.Run("refresh token is not a session token", func(t *testing.T) {
		refresh, _, err := tokens.Sign(token.KindRefresh, token.Claims{Email: "ada@example.com"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/library", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: refresh})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Stop()

	handler := rl.Middleware(okHandler())

	newReq := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
		req.RemoteAddr = addr
		return req
	}

	// Burst of 2, then the bucket is empty.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq("10.0.0.1:1234"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// A different client has its own bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq("10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}
