package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/authgate/internal/shared/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		SessionSecret: "session-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		SessionTTL:    2 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Issuer:        "authgate-test",
	})
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("missing secrets", func(t *testing.T) {
		_, err := NewService(Config{})
		assert.Error(t, err)
	})

	t.Run("equal secrets rejected", func(t *testing.T) {
		_, err := NewService(Config{
			SessionSecret: "same",
			RefreshSecret: "same",
		})
		assert.Error(t, err)
	})

	t.Run("default lifetimes", func(t *testing.T) {
		svc, err := NewService(Config{
			SessionSecret: "s1",
			RefreshSecret: "s2",
		})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, svc.SessionTTL())
		assert.Equal(t, 30*24*time.Hour, svc.RefreshTTL())
	})
}

func TestService_SignAndVerify(t *testing.T) {
	svc := newTestService(t)

	claims := Claims{Email: "ada@example.com", Name: "Ada", Provider: "github"}

	for _, kind := range []Kind{KindSession, KindRefresh} {
		t.Run(string(kind), func(t *testing.T) {
			signed, expiresAt, err := svc.Sign(kind, claims)
			require.NoError(t, err)
			assert.NotEmpty(t, signed)
			assert.True(t, expiresAt.After(time.Now()))

			decoded, err := svc.Verify(kind, signed)
			require.NoError(t, err)
			assert.Equal(t, "ada@example.com", decoded.Email)
			assert.Equal(t, "Ada", decoded.Name)
			assert.Equal(t, "github", decoded.Provider)
			assert.Equal(t, "authgate-test", decoded.Issuer)
			assert.WithinDuration(t, expiresAt, decoded.ExpiresAt.Time, time.Second)
		})
	}
}

func TestService_Verify_CrossKind(t *testing.T) {
	svc := newTestService(t)

	session, _, err := svc.Sign(KindSession, Claims{Email: "ada@example.com"})
	require.NoError(t, err)
	refresh, _, err := svc.Sign(KindRefresh, Claims{Email: "ada@example.com"})
	require.NoError(t, err)

	// A token signed under one secret must not verify under the other.
	_, err = svc.Verify(KindRefresh, session)
	assert.True(t, errors.IsCode(err, errors.CodeTokenInvalid))

	_, err = svc.Verify(KindSession, refresh)
	assert.True(t, errors.IsCode(err, errors.CodeTokenInvalid))
}

func TestService_Verify_Expired(t *testing.T) {
	svc, err := NewService(Config{
		SessionSecret: "s1",
		RefreshSecret: "s2",
		SessionTTL:    -time.Minute, // already expired at signing time
	})
	require.NoError(t, err)

	signed, _, err := svc.Sign(KindSession, Claims{Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = svc.Verify(KindSession, signed)
	assert.True(t, errors.IsCode(err, errors.CodeTokenExpired))
}

func TestService_Verify_Tampered(t *testing.T) {
	svc := newTestService(t)

	signed, _, err := svc.Sign(KindRefresh, Claims{Email: "ada@example.com"})
	require.NoError(t, err)

	tampered := signed[:len(signed)-2] + "xx"
	_, err = svc.Verify(KindRefresh, tampered)
	assert.True(t, errors.IsCode(err, errors.CodeTokenInvalid))
}

func TestService_ResignAssignsFreshExpiry(t *testing.T) {
	svc := newTestService(t)

	refresh, _, err := svc.Sign(KindRefresh, Claims{Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)

	decoded, err := svc.Verify(KindRefresh, refresh)
	require.NoError(t, err)

	StripTemporal(decoded)
	assert.Nil(t, decoded.ExpiresAt)
	assert.Nil(t, decoded.IssuedAt)

	session, expiresAt, err := svc.Sign(KindSession, *decoded)
	require.NoError(t, err)

	sessionClaims, err := svc.Verify(KindSession, session)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))
	assert.WithinDuration(t, time.Now().Add(svc.SessionTTL()), sessionClaims.ExpiresAt.Time, 2*time.Second)
	assert.Equal(t, "ada@example.com", sessionClaims.Email)
	assert.Equal(t, "Ada", sessionClaims.Name)
}

func TestDecodeUnverified(t *testing.T) {
	svc := newTestService(t)

	signed, expiresAt, err := svc.Sign(KindSession, Claims{Email: "ada@example.com"})
	require.NoError(t, err)

	claims, err := DecodeUnverified(signed)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt.Time, time.Second)

	// Tampering the signature does not matter for an unverified decode.
	claims, err = DecodeUnverified(signed[:len(signed)-2] + "xx")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Email)

	_, err = DecodeUnverified("not-a-token")
	assert.Error(t, err)
}

func TestService_UnknownKind(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.Sign(Kind("bogus"), Claims{})
	assert.Error(t, err)

	_, err = svc.Verify(Kind("bogus"), "whatever")
	assert.Error(t, err)
}
