// Package logger provides structured logging for the vector collection engine.
//
// It wraps Uber's Zap with a small, map-based field API that the engine packages
// consume through narrow Logger interfaces of their own:
//
//	type Logger interface {
//	    Info(msg string, err error, fields ...map[string]interface{})
//	    Warn(msg string, err error, fields ...map[string]interface{})
//	    Error(msg string, err error, fields ...map[string]interface{})
//	}
//
// # Direct Usage (Without FX)
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:       logger.Info,
//		ServiceName: "vector-engine",
//	})
//	log.Info("collection created", nil, map[string]interface{}{
//		"collection_id": "m1",
//	})
//
// Entries are JSON with ISO8601 timestamps, the process id and the service name.
// With EnableTracing set, the *WithContext methods add trace_id and span_id from
// the OpenTelemetry span in the context.
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		fx.Provide(func() logger.Config {
//			return logger.Config{Level: logger.Debug}
//		}),
//	)
//
// Use NewNop in tests that do not assert on log output.
package logger
