package pgvector

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// FXModule provides *VectorDb, exposes it as vectordb.VectorDb and installs
// the vector extension on start.
var FXModule = fx.Module("pgvector",
	fx.Provide(
		NewVectorDbWithDI,
		fx.Annotate(
			ProvideVectorDb,
			fx.As(new(vectordb.VectorDb)),
		),
	),
	fx.Invoke(RegisterVectorDbLifecycle),
)

// ProvideVectorDb exposes the concrete *VectorDb as the vectordb.VectorDb interface.
func ProvideVectorDb(db *VectorDb) vectordb.VectorDb {
	return db
}

// VectorDbParams groups the dependencies needed to create a VectorDb.
type VectorDbParams struct {
	fx.In

	Config   Config
	Postgres postgres.Client
	Meta     *metastore.Cache
	Logger   *logger.Logger
	Metrics  metrics.MetricsCollector `optional:"true"`
	Tracer   *tracer.Tracer           `optional:"true"`
}

// NewVectorDbWithDI creates a VectorDb from the container.
//
//	app := fx.New(
//	    logger.FXModule,
//	    postgres.FXModule,
//	    metastore.FXModule,
//	    pgvector.FXModule,
//	    fx.Provide(func() pgvector.Config { return pgvector.DefaultConfig() }),
//	)
func NewVectorDbWithDI(params VectorDbParams) *VectorDb {
	return NewVectorDb(params.Postgres, params.Meta, params.Config,
		WithLogger(params.Logger),
		WithMetrics(params.Metrics),
		WithTracer(params.Tracer),
	)
}

// VectorDbLifeCycleParams groups the dependencies for lifecycle management.
type VectorDbLifeCycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	VectorDb  *VectorDb
}

// RegisterVectorDbLifecycle runs Migrate on start and Close on stop.
func RegisterVectorDbLifecycle(params VectorDbLifeCycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.VectorDb.Migrate(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return params.VectorDb.Close()
		},
	})
}
