package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// CachingVerifier memoizes successful verifications so that reconnecting
// clients do not pay the verification cost (OIDC verification in particular
// involves provider round trips). Failed verifications are never cached.
type CachingVerifier struct {
	next  Verifier
	cache *lru.Cache
	ttl   time.Duration
}

type cacheEntry struct {
	ident   Identity
	expires time.Time
}

func NewCachingVerifier(next Verifier, size int, ttl time.Duration) (*CachingVerifier, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingVerifier{next: next, cache: cache, ttl: ttl}, nil
}

func (v *CachingVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if e, ok := v.cache.Get(token); ok {
		entry := e.(cacheEntry)
		if time.Now().Before(entry.expires) {
			ident := entry.ident
			return &ident, nil
		}
		v.cache.Remove(token)
	}
	ident, err := v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	v.cache.Add(token, cacheEntry{ident: *ident, expires: time.Now().Add(v.ttl)})
	return ident, nil
}
