// Package cache stores revoked token ids until the tokens would have expired anyway
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenDenylist records revoked token ids (jti)
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist shares revocations across API instances
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

func (d *RedisDenylist) key(jti string) string {
	return fmt.Sprintf("%s:%s", d.prefix, jti)
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// MemoryDenylist is process-local and unbounded: an entry leaves only when the token it
// revokes has expired, never to make room for another.
type MemoryDenylist struct {
	entries *lru.LRU[string, time.Time]
	now     func() time.Time
}

// NewMemoryDenylist drops entries after maxTTL, the longest token lifetime
func NewMemoryDenylist(maxTTL time.Duration) *MemoryDenylist {
	return &MemoryDenylist{
		entries: lru.NewLRU[string, time.Time](0, nil, maxTTL),
		now:     time.Now,
	}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	d.entries.Add(jti, d.now().Add(ttl))
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	until, ok := d.entries.Get(jti)
	if !ok {
		return false, nil
	}
	if d.now().After(until) {
		d.entries.Remove(jti)
		return false, nil
	}
	return true, nil
}
