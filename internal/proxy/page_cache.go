package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageStore keeps decorated pages between requests.
type PageStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, page []byte) error
}

func cacheKey(target, marker string) string {
	return target + "|" + marker
}

type cacheEntry struct {
	data    []byte
	created time.Time
}

// memoryStore is a process-local PageStore with a fixed time to live.
type memoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]cacheEntry
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{ttl: ttl, now: now, data: make(map[string]cacheEntry)}
}

func (c *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.created) >= c.ttl {
		c.mu.Lock()
		if cur, still := c.data[key]; still && cur.created.Equal(entry.created) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.data...), true, nil
}

func (c *memoryStore) Set(_ context.Context, key string, page []byte) error {
	if c.ttl == 0 || len(page) == 0 {
		return nil
	}
	c.mu.Lock()
	c.data[key] = cacheEntry{data: append([]byte(nil), page...), created: c.now()}
	c.mu.Unlock()
	return nil
}

// redisStore shares decorated pages between service instances.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (PageStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &redisStore{client: client, ttl: ttl, prefix: "pagedecor:page:"}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, page []byte) error {
	if s.ttl == 0 || len(page) == 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+key, page, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
