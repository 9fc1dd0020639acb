package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/remlyo/remlyo-api/internal/domain"
)

type RedisFlowStatusCache struct {
	client *redis.Client
}

func NewRedisFlowStatusCache(client *redis.Client) *RedisFlowStatusCache {
	return &RedisFlowStatusCache{client: client}
}

func flowKey(userID uuid.UUID) string {
	return keyPrefix + "flow:" + userID.String()
}

func (c *RedisFlowStatusCache) Get(ctx context.Context, userID uuid.UUID) (domain.FlowStatus, bool, error) {
	raw, err := c.client.Get(ctx, flowKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.FlowStatus(raw), true, nil
}

func (c *RedisFlowStatusCache) Put(ctx context.Context, userID uuid.UUID, status domain.FlowStatus, ttl time.Duration) error {
	return c.client.Set(ctx, flowKey(userID), string(status), ttl).Err()
}

func (c *RedisFlowStatusCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, flowKey(userID)).Err()
}
