package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
)

// Logger is the logging surface the Postgres client needs.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Postgres is a wrapper around gorm.DB that provides connection monitoring,
// automatic reconnection and a transparent fallback to a fresh connection pool
// for reads.
//
// Concurrency: the active `*gorm.DB` pointer is stored in an atomic pointer and can be
// swapped during reconnection without blocking readers.
type Postgres struct {
	cfg     Config
	client  atomic.Pointer[gorm.DB]
	logger  Logger
	metrics metrics.MetricsCollector

	// reconnectMu serializes pool swaps so concurrent fallbacks reconnect once.
	reconnectMu sync.Mutex

	shutdownSignal  chan struct{}
	retryChanSignal chan error

	closeRetryChanOnce sync.Once
	closeShutdownOnce  sync.Once
}

// Option customizes a Postgres client.
type Option func(*Postgres)

// WithMetrics records connection fallbacks on m.
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(p *Postgres) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewPostgres creates a new Postgres instance and establishes the initial
// connection. The returned client is ready to use; MonitorConnection and
// RetryConnection are started by the fx lifecycle or by the caller.
func NewPostgres(cfg Config, logger Logger, opts ...Option) (*Postgres, error) {
	cfg = cfg.applyDefaults()

	conn, err := connectToPostgres(cfg)
	if err != nil {
		return nil, fmt.Errorf("error in connecting to postgres: %w", err)
	}

	pg := &Postgres{
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics.Nop{},
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(pg)
	}
	pg.client.Store(conn)

	logger.Info("connected to postgres", nil, map[string]interface{}{
		"host":     cfg.Connection.Host,
		"database": cfg.Connection.DbName,
	})
	return pg, nil
}

// connectToPostgres opens a gorm connection and configures its pool.
func connectToPostgres(cfg Config) (*gorm.DB, error) {
	database, err := gorm.Open(
		postgres.Open(cfg.DSN()),
		&gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgresSQL database: %w", err)
	}

	databaseInstance, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get PostgresSQL database instance: %w", err)
	}

	databaseInstance.SetMaxOpenConns(cfg.ConnectionDetails.MaxOpenConns)
	databaseInstance.SetMaxIdleConns(cfg.ConnectionDetails.MaxIdleConns)
	databaseInstance.SetConnMaxLifetime(cfg.ConnectionDetails.ConnMaxLifetime)

	return database, nil
}

// DB returns the current connection pool.
func (p *Postgres) DB() *gorm.DB {
	return p.client.Load()
}

// Reconnect replaces the pool when it is still the one the caller saw fail.
// Passing nil forces a reconnect.
func (p *Postgres) Reconnect(stale *gorm.DB) error {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	current := p.client.Load()
	if stale != nil && current != stale {
		// Someone else already swapped the pool.
		return nil
	}

	fresh, err := connectToPostgres(p.cfg)
	if err != nil {
		return err
	}
	p.client.Store(fresh)

	if current != nil {
		if sqlDB, err := current.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	p.logger.Info("reconnected to postgres", nil)
	return nil
}

// RetryConnection waits for failure signals from MonitorConnection and
// reconnects until it succeeds. It returns on shutdown or when ctx ends.
func (p *Postgres) RetryConnection(ctx context.Context) {
	for {
		select {
		case <-p.shutdownSignal:
			return
		case <-ctx.Done():
			return
		case failure, ok := <-p.retryChanSignal:
			if !ok {
				return
			}
			p.logger.Warn("postgres health check failed, reconnecting", failure)
			for {
				err := p.Reconnect(nil)
				if err == nil {
					break
				}
				p.logger.Error("postgres reconnection failed", err)
				select {
				case <-p.shutdownSignal:
					return
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// MonitorConnection pings the database every HealthCheckInterval and signals
// RetryConnection when a ping fails.
func (p *Postgres) MonitorConnection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownSignal:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.healthCheck(ctx); err != nil {
				select {
				case p.retryChanSignal <- err:
				default:
				}
			}
		}
	}
}

// healthCheck pings a snapshot of the current pool with a 5 second timeout.
func (p *Postgres) healthCheck(ctx context.Context) error {
	dbConn := p.DB()
	if dbConn == nil {
		return fmt.Errorf("database client is not initialized")
	}

	db, err := dbConn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance during health check: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed during health check: %w", err)
	}
	return nil
}

// GracefulShutdown stops the background loops and closes the pool.
func (p *Postgres) GracefulShutdown() error {
	p.closeShutdownOnce.Do(func() {
		close(p.shutdownSignal)
	})

	sqlDB, err := p.DB().DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}
