package postgres

import (
	"context"

	"gorm.io/gorm"
)

// Client is the Postgres surface the engine depends on.
// It is implemented by *Postgres.
type Client interface {
	// DB returns the current connection pool. The pointer may change after a reconnect;
	// do not cache it across operations.
	DB() *gorm.DB

	// Transaction runs fn in one transaction on the current pool.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	// WithReadFallback runs a read, retrying it on a fresh pool after a connection failure.
	WithReadFallback(ctx context.Context, fn func(db *gorm.DB) error) error

	GracefulShutdown() error
}
