// Package apikeycache caches validated API keys in front of Postgres (§4.8
// first half). Postgres remains the source of truth; the cache only shortens
// the hot auth path. Shape mirrors itskum47/FluxForge's idempotency.Store:
// an optional shared Backend (Redis) layered over an in-process L1 with its
// own soft TTL, so a single node still benefits with REDIS_URL unset.
package apikeycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// Backend is the shared-cache seam. A Redis-backed implementation lives in
// redis_backend.go; nil means "in-process cache only".
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

type localEntry struct {
	key  *domain.APIKey
	at   time.Time
}

type Cache struct {
	backend Backend
	store   repository.APIKeyStore
	local   sync.Map // key_id -> localEntry

	ttl           time.Duration
	touchDebounce time.Duration
	lastTouch     sync.Map // api_key.ID -> time.Time
}

func New(backend Backend, store repository.APIKeyStore, ttl, touchDebounce time.Duration) *Cache {
	return &Cache{backend: backend, store: store, ttl: ttl, touchDebounce: touchDebounce}
}

// Get resolves an API key by its public key_id, trying L1, then the shared
// backend, then Postgres, populating faster layers as it goes.
func (c *Cache) Get(ctx context.Context, keyID string) (*domain.APIKey, error) {
	if v, ok := c.local.Load(keyID); ok {
		e := v.(localEntry)
		if time.Since(e.at) < c.ttl {
			return e.key, nil
		}
		c.local.Delete(keyID)
	}

	if c.backend != nil {
		if raw, err := c.backend.Get(ctx, cacheKey(keyID)); err == nil && raw != "" {
			var k domain.APIKey
			if err := json.Unmarshal([]byte(raw), &k); err == nil {
				c.local.Store(keyID, localEntry{key: &k, at: time.Now()})
				return &k, nil
			}
		}
	}

	k, err := c.store.GetByKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, keyID, k)
	return k, nil
}

func (c *Cache) put(ctx context.Context, keyID string, k *domain.APIKey) {
	c.local.Store(keyID, localEntry{key: k, at: time.Now()})
	if c.backend != nil {
		if data, err := json.Marshal(k); err == nil {
			_ = c.backend.Set(ctx, cacheKey(keyID), string(data), c.ttl)
		}
	}
}

// Invalidate drops a key from both cache tiers, called on revoke.
func (c *Cache) Invalidate(ctx context.Context, keyID string) {
	c.local.Delete(keyID)
	if c.backend != nil {
		_ = c.backend.Del(ctx, cacheKey(keyID))
	}
}

// TouchLastUsed debounces the last_used_at write so a hot key isn't hammering
// Postgres on every request; at most one write per touchDebounce per key.
func (c *Cache) TouchLastUsed(k *domain.APIKey) {
	now := time.Now()
	if last, ok := c.lastTouch.Load(k.ID); ok {
		if now.Sub(last.(time.Time)) < c.touchDebounce {
			return
		}
	}
	c.lastTouch.Store(k.ID, now)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.store.TouchLastUsed(ctx, k.ID)
	}()
}

func cacheKey(keyID string) string {
	return "apikey:" + keyID
}
