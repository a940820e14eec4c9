package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/retry"
)

// Transaction runs fn in a transaction on the current pool. Returning an
// error from fn rolls back; otherwise the transaction commits.
//
// Writes are never retried on a fresh connection: a failed commit has an
// unknown outcome and must be verified by re-reading.
//
// Example usage:
//
//	err := pg.Transaction(ctx, func(tx *gorm.DB) error {
//		if err := tx.Table("a").Create(&row).Error; err != nil {
//			return err
//		}
//		return tx.Table("b").Create(&other).Error
//	})
func (p *Postgres) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.DB().WithContext(ctx).Transaction(fn)
}

// WithReadFallback runs the read fn against the current pool. When it fails
// because the connection is broken, the pool is replaced and fn runs again,
// bounded by the ReadFallback policy. Statement errors are returned as is.
func (p *Postgres) WithReadFallback(ctx context.Context, fn func(db *gorm.DB) error) error {
	var used *gorm.DB
	policy := retry.Policy{MaxAttempts: p.cfg.ReadFallback.MaxAttempts, Wait: p.cfg.ReadFallback.Wait}

	attempts, err := retry.Do(ctx, policy, IsConnectionError,
		func(ctx context.Context) error {
			if used != nil {
				if err := p.Reconnect(used); err != nil {
					return err
				}
			}
			used = p.DB()
			return fn(used.WithContext(ctx))
		},
		func(attempt int, err error, _ time.Duration) {
			p.logger.Warn("read failed on a broken connection, retrying on a fresh one", err, map[string]interface{}{
				"attempt": attempt,
			})
		},
	)

	if attempts > 1 {
		outcome := metrics.StatusSuccess
		if err != nil {
			outcome = metrics.StatusError
		}
		p.metrics.IncrementConnectionFallbacks(outcome)
	}
	return err
}
