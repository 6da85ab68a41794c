package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Run("without underlying error", func(t *testing.T) {
		err := New(CodeNotFound, "provider not found")
		assert.Equal(t, "NOT_FOUND: provider not found", err.Error())
	})

	t.Run("with underlying error", func(t *testing.T) {
		underlying := errors.New("connection refused")
		err := Wrap(CodeOAuthExchange, "token endpoint unreachable", underlying)
		assert.Contains(t, err.Error(), "OAUTH_EXCHANGE_FAILED: token endpoint unreachable")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	assert.True(t, errors.Is(err, underlying))
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeTokenExpired, "expired 1")
	err2 := New(CodeTokenExpired, "expired 2")
	err3 := New(CodeTokenInvalid, "invalid")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsCode(t *testing.T) {
	err := InvalidRefreshToken("bad signature")

	assert.True(t, IsCode(err, CodeInvalidRefreshToken))
	assert.False(t, IsCode(err, CodeTokenExpired))
	assert.False(t, IsCode(errors.New("plain"), CodeInvalidRefreshToken))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unauthorized", Unauthorized("no"), http.StatusUnauthorized},
		{"token expired", TokenExpired("old"), http.StatusUnauthorized},
		{"invalid refresh token", InvalidRefreshToken("bad"), http.StatusUnauthorized},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"oauth exchange", OAuthExchange("provider 500"), http.StatusInternalServerError},
		{"identity resolution", IdentityResolution("no email"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}
