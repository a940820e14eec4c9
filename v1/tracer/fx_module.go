package tracer

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorcollections/v1/logger"
)

// FXModule provides the *Tracer and flushes it on shutdown.
//
//	app := fx.New(
//	    logger.FXModule,
//	    tracer.FXModule,
//	    fx.Provide(func() tracer.Config { return tracer.Config{ServiceName: "vector-engine"} }),
//	)
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClientWithDI,
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// NewClientWithDI adapts NewClient to the *logger.Logger in the container.
func NewClientWithDI(cfg Config, log *logger.Logger) (*Tracer, error) {
	return NewClient(cfg, log)
}

// RegisterTracerLifecycle shuts the tracer provider down on stop, flushing
// pending spans to the exporter.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if tracer.logger != nil {
				tracer.logger.Info("shutting down tracer", nil)
			}
			return tracer.Shutdown(ctx)
		},
	})
}
