package postgres

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
)

// FXModule provides *Postgres and exposes it as Client, then runs the
// connection monitor for the application's lifetime.
var FXModule = fx.Module("postgres",
	fx.Provide(
		NewPostgresClientWithDI,
		fx.Annotate(
			ProvideClient,
			fx.As(new(Client)),
		),
	),
	fx.Invoke(RegisterPostgresLifecycle),
)

// ProvideClient exposes the concrete *Postgres as the Client interface.
func ProvideClient(pg *Postgres) Client {
	return pg
}

// PostgresParams groups the dependencies needed to create a Postgres client.
type PostgresParams struct {
	fx.In

	Config  Config
	Logger  *logger.Logger
	Metrics metrics.MetricsCollector `optional:"true"`
}

// NewPostgresClientWithDI creates a Postgres client from the container.
//
//	app := fx.New(
//	    logger.FXModule,
//	    postgres.FXModule,
//	    fx.Provide(func() postgres.Config { return loadPostgresConfig() }),
//	)
func NewPostgresClientWithDI(params PostgresParams) (*Postgres, error) {
	return NewPostgres(params.Config, params.Logger, WithMetrics(params.Metrics))
}

// PostgresLifeCycleParams groups the dependencies for lifecycle management.
type PostgresLifeCycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Postgres  *Postgres
}

// RegisterPostgresLifecycle starts connection monitoring and reconnection on
// start and closes the pool on stop, waiting for both loops to exit.
func RegisterPostgresLifecycle(params PostgresLifeCycleParams) {
	wg := &sync.WaitGroup{}
	// The start context ends once OnStart returns; the loops need their own.
	loopCtx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wg.Add(2)
			go func() {
				defer wg.Done()
				params.Postgres.MonitorConnection(loopCtx)
			}()
			go func() {
				defer wg.Done()
				params.Postgres.RetryConnection(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			params.Postgres.closeShutdownOnce.Do(func() {
				close(params.Postgres.shutdownSignal)
			})
			wg.Wait()
			return params.Postgres.GracefulShutdown()
		},
	})
}
