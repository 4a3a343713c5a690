package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the string cache consumed by the template engine. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryStore adapts SimpleCache to Store for single-process deployments.
type MemoryStore struct {
	cache *SimpleCache[string]
}

// NewMemoryStore returns a process-local store.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{cache: NewSimple[string](defaultTTL)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.cache.Clear()
	return nil
}

// RedisStore keeps entries in Redis under prefix so several processes share
// fetched template content. Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// NewRedisStore wraps client. Keys are written as "<prefix>:cache:<key>".
func NewRedisStore(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *RedisStore {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if prefix == "" {
		prefix = "messenger"
	}
	return &RedisStore{client: client, prefix: prefix + ":cache:", defaultTTL: defaultTTL}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache redis: get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache redis: set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache redis: delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache redis: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache redis: clear: %w", err)
	}
	return nil
}
