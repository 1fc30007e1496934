// Package cache holds SessionCache implementations for the session mirror.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/recovery/domain"
)

// MemorySessionCache implements domain.SessionCache using ttlcache.
// Entries live until deleted unless a TTL is given.
type MemorySessionCache struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemorySessionCache creates an in-memory cache. A ttl of zero keeps entries forever.
func NewMemorySessionCache(ttl time.Duration) *MemorySessionCache {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	// Start the cleanup process
	go c.Start()

	return &MemorySessionCache{cache: c}
}

// Set implements domain.SessionCache.
func (s *MemorySessionCache) Set(_ context.Context, key string, value []byte) error {
	s.cache.Set(key, append([]byte(nil), value...), ttlcache.DefaultTTL)
	return nil
}

// Get implements domain.SessionCache.
func (s *MemorySessionCache) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), item.Value()...), nil
}

// Delete implements domain.SessionCache. Deleting a missing key is not an error.
func (s *MemorySessionCache) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Len counts the entries currently held.
func (s *MemorySessionCache) Len() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemorySessionCache) Close() error {
	s.cache.Stop()
	return nil
}

var _ domain.SessionCache = (*MemorySessionCache)(nil)
