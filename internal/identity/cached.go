package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/campuskit/authgate/internal/shared/cache"
)

// defaultCacheTTL is long because a resolved id never changes for an email.
const defaultCacheTTL = 24 * time.Hour

// Cached decorates a Resolver with a Redis lookup cache.
type Cached struct {
	delegate Resolver
	cache    *cache.Client
	ttl      time.Duration
}

// NewCached creates a caching resolver around delegate.
func NewCached(delegate Resolver, c *cache.Client, ttl time.Duration) *Cached {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &Cached{delegate: delegate, cache: c, ttl: ttl}
}

// Resolve checks the cache before delegating. Cache failures fall through to
// the delegate; the cache is an optimization, not a source of truth.
func (c *Cached) Resolve(ctx context.Context, email string) (string, error) {
	if email == "" {
		return c.delegate.Resolve(ctx, email)
	}

	key := cacheKey(email)
	if id, err := c.cache.Get(ctx, key); err == nil && id != "" {
		return id, nil
	}

	id, err := c.delegate.Resolve(ctx, email)
	if err != nil {
		return "", err
	}

	_ = c.cache.Set(ctx, key, id, c.ttl)
	return id, nil
}

// cacheKey hashes the email so raw addresses never appear in Redis keys.
func cacheKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "user:email:" + hex.EncodeToString(sum[:])
}
