package services

import (
	"context"
	"errors"
	"time"

	"eventproxy/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// storeMax keeps the larger of the stored value and ARGV[1]. Every value written is a
// durable total read at some instant, so the key can lag the durable counter but never
// fall behind a total that was already observed.
var storeMax = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local total = tonumber(ARGV[1])
if current > total then
	total = current
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call("SET", KEYS[1], total, "PX", ttl)
else
	redis.call("SET", KEYS[1], total)
end
return total
`)

// RedisCounter caches cumulative usage in redis, seeded from the durable store.
// Keys expire after ttl so a missed update is bounded in time.
type RedisCounter struct {
	client  *redis.Client
	durable repository.UsageRepository
	ttl     time.Duration
}

func NewRedisCounter(client *redis.Client, durable repository.UsageRepository, ttl time.Duration) *RedisCounter {
	return &RedisCounter{client: client, durable: durable, ttl: ttl}
}

func counterKey(eventID uuid.UUID) string {
	return "quota:used:" + eventID.String()
}

func (c *RedisCounter) Load(ctx context.Context, eventID uuid.UUID) (int64, error) {
	used, err := c.client.Get(ctx, counterKey(eventID)).Int64()
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}

	seed, err := c.durable.GetCumulativeUsage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	// a commit that landed after the read above has already stored a larger total
	return c.storeMax(ctx, eventID, seed)
}

func (c *RedisCounter) Observe(ctx context.Context, eventID uuid.UUID, total int64) error {
	_, err := c.storeMax(ctx, eventID, total)
	return err
}

func (c *RedisCounter) Invalidate(ctx context.Context, eventID uuid.UUID) error {
	return c.client.Del(ctx, counterKey(eventID)).Err()
}

func (c *RedisCounter) storeMax(ctx context.Context, eventID uuid.UUID, total int64) (int64, error) {
	return storeMax.Run(ctx, c.client, []string{counterKey(eventID)}, total, c.ttl.Milliseconds()).Int64()
}
