package storage

import (
	"context"
	"errors"
	"fmt"

	"minilink/internal/cache"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key a RedisStore writes.
const DefaultNamespace = "minilink:local:"

// RedisStore keeps entries in Redis so several client processes share one substrate.
// Writes are last-write-wins; there are no transactions across keys.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
	owned     bool
}

// OpenRedis connects to addr (host:port or redis:// URL) and returns a store that owns the client.
func OpenRedis(addr, namespace string) (*RedisStore, error) {
	rdb, err := cache.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	s := NewRedisStore(rdb, namespace)
	s.owned = true
	return s, nil
}

// NewRedisStore wraps an existing client. The caller keeps ownership of rdb.
func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{rdb: rdb, namespace: namespace}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client { return s.rdb }

func (s *RedisStore) key(k string) string { return s.namespace + k }

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.key(key), value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
