// Package marker records which trigger messages have already been handled,
// so a redelivered message does not count a view twice.
package marker

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

type ProcessMarker interface {
	// Acquire returns true when the caller is the first to claim msgID.
	Acquire(ctx context.Context, msgID string) (bool, error)
	// Release gives up a claim so that a redelivery can be processed.
	Release(ctx context.Context, msgID string) error
}

var (
	_ ProcessMarker = (*LocalMarker)(nil)
	_ ProcessMarker = (*RedisMarker)(nil)
)

// New returns a RedisMarker on client, or a LocalMarker when client is nil.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) ProcessMarker {
	if client == nil {
		return NewLocalMarker(ttl)
	}
	return NewRedisMarker(client, prefix, ttl)
}

type LocalMarker struct {
	cache *cache.Cache
}

func NewLocalMarker(ttl time.Duration) *LocalMarker {
	return &LocalMarker{cache: cache.New(ttl, ttl)}
}

func (m *LocalMarker) Acquire(ctx context.Context, msgID string) (bool, error) {
	err := m.cache.Add(msgID, struct{}{}, cache.DefaultExpiration)
	return err == nil, nil
}

func (m *LocalMarker) Release(ctx context.Context, msgID string) error {
	m.cache.Delete(msgID)
	return nil
}

type RedisMarker struct {
	prefix string
	ttl    time.Duration
	client redis.UniversalClient
}

func NewRedisMarker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisMarker {
	return &RedisMarker{prefix: prefix, ttl: ttl, client: client}
}

func (m *RedisMarker) Acquire(ctx context.Context, msgID string) (bool, error) {
	return m.client.SetNX(ctx, m.prefix+msgID, "v", m.ttl).Result()
}

func (m *RedisMarker) Release(ctx context.Context, msgID string) error {
	return m.client.Del(ctx, m.prefix+msgID).Err()
}
