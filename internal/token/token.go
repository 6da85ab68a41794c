// Package token signs and verifies the gateway's session and refresh tokens.
//
// The two token kinds are signed under independent HMAC secrets with
// independent lifetimes, so compromising one secret does not forge tokens of
// the other kind.
package token

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campuskit/authgate/internal/shared/errors"
)

// Kind identifies a token class.
type Kind string

const (
	// KindSession is the short-lived credential consumed by protected requests.
	KindSession Kind = "session"
	// KindRefresh is the long-lived credential used only to mint session tokens.
	KindRefresh Kind = "refresh"
)

// Claims are the signed claims carried by both token kinds. The subject is
// the internal user id when a persistent identity store is enabled.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Config holds token service configuration.
type Config struct {
	SessionSecret string        `mapstructure:"session_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

// Service signs and verifies tokens of both kinds.
type Service struct {
	sessionSecret []byte
	refreshSecret []byte
	sessionTTL    time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewService creates a token service. The two secrets must be set and differ.
func NewService(cfg Config) (*Service, error) {
	if cfg.SessionSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("session and refresh secrets are required")
	}
	if cfg.SessionSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("session and refresh secrets must differ")
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = 2 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &Service{
		sessionSecret: []byte(cfg.SessionSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		sessionTTL:    sessionTTL,
		refreshTTL:    refreshTTL,
		issuer:        cfg.Issuer,
	}, nil
}

// Sign signs claims as a token of the given kind. Temporal claims are set
// fresh on every call, so re-signing decoded refresh claims never carries a
// stale expiry forward.
func (s *Service) Sign(kind Kind, claims Claims) (string, time.Time, error) {
	secret, ttl, err := s.kindParams(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims.ID = uuid.New().String()
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.NotBefore = jwt.NewNumericDate(now)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", kind, err)
	}

	return signed, expiresAt, nil
}

// Verify validates a token of the given kind and returns its claims.
func (s *Service) Verify(kind Kind, tokenString string) (*Claims, error) {
	secret, _, err := s.kindParams(kind)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired(fmt.Sprintf("%s token has expired", kind))
		}
		return nil, errors.TokenInvalid(fmt.Sprintf("invalid %s token", kind)).Wrap(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.TokenInvalid(fmt.Sprintf("invalid %s token claims", kind))
	}

	return claims, nil
}

// StripTemporal clears the temporal registered claims so that a re-sign
// assigns a fresh lifetime.
func StripTemporal(claims *Claims) {
	claims.ExpiresAt = nil
	claims.IssuedAt = nil
	claims.NotBefore = nil
	claims.ID = ""
}

// DecodeUnverified parses a token without verifying its signature.
//
// This exists solely so callers can read the expiry of a locally cached
// token without a network call. It must never be treated as an
// authentication check; the server verifies the signature on every request
// that consumes the token.
func DecodeUnverified(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// SessionTTL returns the session token lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// RefreshTTL returns the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

func (s *Service) kindParams(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case KindSession:
		return s.sessionSecret, s.sessionTTL, nil
	case KindRefresh:
		return s.refreshSecret, s.refreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token kind: %q", kind)
	}
}
