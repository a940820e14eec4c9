package redis

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
)

// FXModule provides *RedisClient and exposes it as Client.
//
//	app := fx.New(
//	    logger.FXModule,
//	    redis.FXModule,
//	    fx.Provide(func() redis.Config { return loadRedisConfig() }),
//	)
var FXModule = fx.Module("redis",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			func(c *RedisClient) Client { return c },
			fx.As(new(Client)),
		),
	),
	fx.Invoke(RegisterRedisLifecycle),
)

// RedisParams groups the dependencies needed to create a Redis client
type RedisParams struct {
	fx.In

	Config Config
	Logger *logger.Logger
}

// NewClientWithDI creates a Redis client from the container.
func NewClientWithDI(params RedisParams) (*RedisClient, error) {
	return NewClient(params.Config, params.Logger)
}

// RedisLifecycleParams groups the dependencies needed for Redis lifecycle management
type RedisLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *RedisClient
	Logger    *logger.Logger
}

// RegisterRedisLifecycle pings Redis on start, failing startup when it is
// unreachable, and closes the client on stop.
func RegisterRedisLifecycle(params RedisLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Client.Ping(ctx); err != nil {
				params.Logger.Error("failed to ping redis on startup", err)
				return err
			}
			params.Logger.Info("redis client started and healthy", nil)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return params.Client.Close()
		},
	})
}
