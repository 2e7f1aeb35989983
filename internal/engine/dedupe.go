package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDeduper records event ids with SETNX so a creation event that is
// delivered twice only fires once within the TTL.
type RedisDeduper struct {
	client SetNXer
	ttl    time.Duration
}

func NewRedisDeduper(client SetNXer, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return r.client.SetNX(ctx, "event:seen:"+eventID, 1, r.ttl).Result()
}
