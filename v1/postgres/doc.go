// Package postgres provides the Postgres connection layer of the vector collection engine.
//
// It wraps gorm (pgx driver) with:
//   - an atomically swappable connection pool
//   - a background health check that reconnects when pings fail
//   - WithReadFallback, which retries a read once on a fresh pool when the
//     current connection turns out to be broken
//   - SQLSTATE classification of driver errors (lock contention, duplicate
//     keys, connection loss)
//
// Basic Usage:
//
//	pg, err := postgres.NewPostgres(postgres.DefaultConfig().WithConnection(postgres.Connection{
//		Host:     "localhost",
//		Port:     "5432",
//		User:     "postgres",
//		Password: "secret",
//		DbName:   "vectors",
//	}), log)
//	if err != nil {
//		return err
//	}
//	defer pg.GracefulShutdown()
//
//	var n int64
//	err = pg.WithReadFallback(ctx, func(db *gorm.DB) error {
//		return db.Table("vc_m1_objects").Count(&n).Error
//	})
//
// Writes go through Transaction and are never retried: after a failed commit
// the outcome is unknown and callers verify it by re-reading.
package postgres
