// Package redis stores the session mirror in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/recovery/domain"
)

// SessionCache implements domain.SessionCache using Redis strings.
type SessionCache struct {
	client redis.Cmdable
	prefix string        // Optional prefix for keys
	ttl    time.Duration // Zero keeps entries until deleted
}

// NewSessionCache creates a new [SessionCache] instance.
func NewSessionCache(client redis.Cmdable, prefix string, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for a cache key.
func (r *SessionCache) redisKey(key string) string {
	if r.prefix == "" {
		return "session:" + key
	}
	return fmt.Sprintf("%s:session:%s", r.prefix, key)
}

// Set stores the serialized session.
func (r *SessionCache) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.redisKey(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Get returns the stored value or domain.ErrCacheMiss.
func (r *SessionCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	return val, nil
}

// Delete removes the entry. A missing key is not an error.
func (r *SessionCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

var _ domain.SessionCache = (*SessionCache)(nil)
