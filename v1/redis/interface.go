package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Client is the Redis surface used for cache invalidation broadcasts.
//
// This interface is implemented by the concrete *RedisClient type.
type Client interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	Subscribe(ctx context.Context, channel string, handle func(ctx context.Context, payload []byte)) (*Subscription, error)
	Client() redis.UniversalClient
	Close() error
}
