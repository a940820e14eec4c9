package metastore

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/redis"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
)

// FXModule provides the metadata *Cache and subscribes it to invalidation
// events for the application's lifetime.
var FXModule = fx.Module("metastore",
	fx.Provide(
		NewStoreWithDI,
		NewCacheWithDI,
	),
	fx.Invoke(RegisterCacheLifecycle),
)

// StoreParams groups the dependencies needed to pick a DocumentStore.
type StoreParams struct {
	fx.In

	Config   Config
	Postgres postgres.Client `optional:"true"`
}

// NewStoreWithDI returns the DocumentStore named by Config.Backend.
func NewStoreWithDI(params StoreParams) (DocumentStore, error) {
	switch params.Config.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres, "":
		if params.Postgres == nil {
			return nil, fmt.Errorf("metastore backend %q needs a postgres client", BackendPostgres)
		}
		return NewPostgresStore(params.Postgres), nil
	default:
		return nil, fmt.Errorf("unknown metastore backend %q", params.Config.Backend)
	}
}

// CacheParams groups the dependencies needed to create a Cache.
type CacheParams struct {
	fx.In

	Config  Config
	Store   DocumentStore
	Logger  *logger.Logger
	Metrics metrics.MetricsCollector `optional:"true"`
	Redis   redis.Client             `optional:"true"`
	Tracer  *tracer.Tracer           `optional:"true"`
}

// NewCacheWithDI creates a Cache from the container.
//
//	app := fx.New(
//	    logger.FXModule,
//	    postgres.FXModule,
//	    redis.FXModule,
//	    metastore.FXModule,
//	)
func NewCacheWithDI(params CacheParams) (*Cache, error) {
	opts := []Option{WithLogger(params.Logger), WithMetrics(params.Metrics)}
	if params.Config.EnableInvalidation {
		if params.Redis == nil {
			return nil, fmt.Errorf("metastore invalidation needs a redis client")
		}
		opts = append(opts, WithNotifier(NewRedisNotifier(params.Redis, params.Config.InvalidationChannel, params.Tracer, params.Logger)))
	}
	return NewCache(params.Store, opts...), nil
}

// CacheLifeCycleParams groups the dependencies for lifecycle management.
type CacheLifeCycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cache     *Cache
	Store     DocumentStore
}

// RegisterCacheLifecycle migrates the Postgres tables and subscribes to
// invalidations on start; the subscription ends on stop.
func RegisterCacheLifecycle(params CacheLifeCycleParams) {
	// The subscription outlives OnStart, so it gets its own context.
	subCtx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if pgStore, ok := params.Store.(*PostgresStore); ok {
				if err := pgStore.Migrate(ctx); err != nil {
					cancel()
					return err
				}
			}
			if err := params.Cache.Start(subCtx); err != nil {
				cancel()
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			defer cancel()
			return params.Cache.Close()
		},
	})
}
