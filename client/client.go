// Package client maintains a live session token against the auth gateway.
//
// It owns the refresh loop on behalf of the embedding application: a
// periodic check re-signs the session token through the gateway's refresh
// endpoint before it expires, with bounded retries on transient failures.
// A 401 from the gateway is terminal and flips the client to signed-out.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/campuskit/authgate/internal/shared/errors"
	"github.com/campuskit/authgate/internal/shared/logger"
	"github.com/campuskit/authgate/internal/token"
)

const (
	defaultInterval = time.Minute
	defaultSkew     = 30 * time.Second
	defaultAttempts = 2
	defaultDelay    = 2 * time.Second
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the gateway's base URL, without a trailing slash.
	BaseURL string

	// HTTPClient must carry the gateway's refresh cookie, typically via a
	// cookie jar populated by the login redirect. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Interval between periodic refresh checks. Defaults to one minute.
	Interval time.Duration

	// RetryAttempts bounds how many times a failed refresh is retried
	// within one cycle before giving up until the next cycle. A 401 is
	// never retried. Defaults to 2.
	RetryAttempts int

	// RetryDelay is the flat delay between retries. Defaults to 2s.
	RetryDelay time.Duration

	// Skew is how long before expiry a token is treated as stale.
	// Defaults to 30s.
	Skew time.Duration

	// OnSignOut is invoked once when the gateway terminally rejects the
	// refresh token. Optional.
	OnSignOut func()

	Logger *logger.Logger
}

// Client keeps a session token fresh. Safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	interval  time.Duration
	attempts  int
	delay     time.Duration
	skew      time.Duration
	onSignOut func()
	log       *logger.Logger

	group singleflight.Group
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu        sync.RWMutex
	token     string
	signedOut bool
}

// New creates a client. Call Start to run the background refresh loop;
// GetToken works without it but then refreshes only on demand.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultDelay
	}
	skew := cfg.Skew
	if skew <= 0 {
		skew = defaultSkew
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		http:      httpClient,
		interval:  interval,
		attempts:  attempts,
		delay:     delay,
		skew:      skew,
		onSignOut: cfg.OnSignOut,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// SetToken seeds the client with an existing session token, e.g. one read
// from the session cookie after the login redirect.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.signedOut = false
	c.mu.Unlock()
}

// SignedIn reports whether the client holds a usable session. It is false
// after a terminal refresh rejection until SetToken is called again.
func (c *Client) SignedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && !c.signedOut
}

// GetToken returns a session token valid for at least the configured skew,
// refreshing through the gateway if the cached one is stale. Concurrent
// callers share a single refresh request.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	cached := c.token
	signedOut := c.signedOut
	c.mu.RUnlock()

	if signedOut {
		return "", errors.Unauthorized("signed out")
	}
	if cached != "" && !c.stale(cached) {
		return cached, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		// Re-check under the flight: another caller may have refreshed
		// while this one was queued.
		c.mu.RLock()
		current := c.token
		c.mu.RUnlock()
		if current != "" && !c.stale(current) {
			return current, nil
		}
		return c.refreshWithRetry(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// stale reports whether the token expires within the skew window. A token
// whose expiry cannot be read locally is treated as stale so the next
// refresh replaces it. The unverified decode here only reads the expiry;
// the gateway verifies the signature on every request.
func (c *Client) stale(tok string) bool {
	claims, err := token.DecodeUnverified(tok)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return time.Until(claims.ExpiresAt.Time) < c.skew
}

// Start runs the periodic refresh loop until ctx is cancelled, Stop is
// called, or a refresh cycle ends signed out. WakeUp forces an immediate
// check, e.g. when the application regains foreground after a long pause
// that may have let the token expire silently.
func (c *Client) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.maintain(ctx)

		c.mu.RLock()
		out := c.signedOut
		c.mu.RUnlock()
		if out {
			return
		}
	}
}

// WakeUp schedules an immediate refresh check outside the regular cadence.
func (c *Client) WakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Stop terminates the loop started by Start.
func (c *Client) Stop() {
	c.once.Do(func() { close(c.done) })
}

// maintain performs one refresh cycle: skip when the token is still fresh
// or the client is signed out, otherwise refresh with bounded retries.
func (c *Client) maintain(ctx context.Context) {
	c.mu.RLock()
	tok := c.token
	signedOut := c.signedOut
	c.mu.RUnlock()

	if signedOut || (tok != "" && !c.stale(tok)) {
		return
	}

	_, _ = c.refreshWithRetry(ctx)
}

// refreshWithRetry runs one bounded refresh cycle: the initial attempt plus
// up to the configured number of retries with a flat delay between them.
// A 401 is terminal immediately; any other failure is retried. An exhausted
// budget also ends in signed-out, so the caller always holds either a fresh
// token or a definitive failure.
func (c *Client) refreshWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-c.done:
				return "", fmt.Errorf("client stopped")
			case <-time.After(c.delay):
			}
		}

		tok, err := c.refresh(ctx)
		if err == nil {
			return tok, nil
		}
		lastErr = err
		// A terminal rejection already signed the client out.
		if errors.IsCode(err, errors.CodeUnauthorized) {
			return "", err
		}
		c.log.Warn("session refresh failed", "attempt", attempt+1, "error", err)
	}

	c.log.Error("session refresh exhausted retries", "error", lastErr)
	c.signOut()
	return "", lastErr
}

type refreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// refresh calls the gateway's refresh endpoint and stores the new session
// token. A 401 marks the client signed out and fires OnSignOut.
func (c *Client) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", nil)
	if err != nil {
		return "", fmt.Errorf("building refresh request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling refresh endpoint: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		c.signOut()
		return "", errors.Unauthorized("refresh token rejected")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh endpoint returned %d", resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("refresh response missing token")
	}

	c.mu.Lock()
	c.token = body.Token
	c.mu.Unlock()

	return body.Token, nil
}

func (c *Client) signOut() {
	c.mu.Lock()
	alreadyOut := c.signedOut
	c.signedOut = true
	c.token = ""
	c.mu.Unlock()

	if !alreadyOut && c.onSignOut != nil {
		c.onSignOut()
	}
}
