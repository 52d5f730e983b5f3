package pubcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Backend stores opaque encoded records by key. Get reports found=false for
// a missing or expired key.
type Backend interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// MemoryBackend keeps records in process.
type MemoryBackend struct {
	c *cache.Cache
}

// NewMemoryBackend creates an in-process backend. Expired entries are purged
// every cleanup interval.
func NewMemoryBackend(defaultTTL, cleanup time.Duration) *MemoryBackend {
	return &MemoryBackend{c: cache.New(defaultTTL, cleanup)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	x, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := x.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("cache entry %s has type %T", key, x)
	}
	return data, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	m.c.Set(key, data, ttl)
	return nil
}

// ItemCount returns the number of cached entries, including expired entries
// not yet purged.
func (m *MemoryBackend) ItemCount() int {
	return m.c.ItemCount()
}

// RedisBackend keeps records in Redis so they survive restarts and can be
// shared between hosts.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisClient connects to Redis.
func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisBackend wraps a client. Keys are namespaced with prefix.
func NewRedisBackend(rdb *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
