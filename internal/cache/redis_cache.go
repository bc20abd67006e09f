package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"merceria/backend/internal/domain"
)

type RedisCartSlot struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartSlot(addr string, password string, db int, ttl time.Duration) *RedisCartSlot {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	return &RedisCartSlot{client: client, ttl: ttl}
}

func (c *RedisCartSlot) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartSlot) Close() error {
	return c.client.Close()
}

func (c *RedisCartSlot) Load(ctx context.Context, key string) ([]domain.CartItem, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []domain.CartItem
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, false, fmt.Errorf("corrupt cart payload: %w", err)
	}
	return items, true, nil
}

func (c *RedisCartSlot) Save(ctx context.Context, key string, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
