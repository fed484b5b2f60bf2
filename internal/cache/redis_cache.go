package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salesdesk/backend/internal/domain"
)

type RedisReferenceCache struct {
	client *redis.Client
}

func NewRedisReferenceCache(addr string, password string, db int) *RedisReferenceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReferenceCache{client: client}
}

func (c *RedisReferenceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReferenceCache) Close() error {
	return c.client.Close()
}

func (c *RedisReferenceCache) Get(ctx context.Context, key string) (*domain.ReferenceData, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var data domain.ReferenceData
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, false, err
	}
	return &data, true, nil
}

func (c *RedisReferenceCache) Set(ctx context.Context, key string, value *domain.ReferenceData, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// Delete drops a cached entry so the next read reloads from the store.
func (c *RedisReferenceCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
