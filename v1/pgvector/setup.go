package pgvector

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// VectorDb is the Postgres + pgvector implementation of vectordb.VectorDb.
// Collection metadata lives in a metastore.Cache; the vectors live in two
// tables per collection.
type VectorDb struct {
	pg   postgres.Client
	meta *metastore.Cache
	cfg  Config

	optimizations      []Optimization
	queryOptimizations []Optimization

	logger  Logger
	metrics metrics.MetricsCollector
	tracer  *tracer.Tracer
}

var _ vectordb.VectorDb = (*VectorDb)(nil)

type nopLogger struct{}

func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

// Option configures a VectorDb.
type Option func(*VectorDb)

func WithLogger(l Logger) Option {
	return func(db *VectorDb) {
		if l != nil {
			db.logger = l
		}
	}
}

func WithMetrics(m metrics.MetricsCollector) Option {
	return func(db *VectorDb) {
		if m != nil {
			db.metrics = m
		}
	}
}

func WithTracer(t *tracer.Tracer) Option {
	return func(db *VectorDb) {
		db.tracer = t
	}
}

// WithOptimizations replaces the optimizations applied to content collections.
func WithOptimizations(opts ...Optimization) Option {
	return func(db *VectorDb) {
		db.optimizations = opts
	}
}

// WithQueryOptimizations replaces the optimizations applied to query collections.
func WithQueryOptimizations(opts ...Optimization) Option {
	return func(db *VectorDb) {
		db.queryOptimizations = opts
	}
}

// NewVectorDb creates the engine. It does not touch the database; call
// Migrate once before the first collection is created.
func NewVectorDb(pg postgres.Client, meta *metastore.Cache, cfg Config, opts ...Option) *VectorDb {
	cfg.applyDefaults()
	db := &VectorDb{
		pg:                 pg,
		meta:               meta,
		cfg:                cfg,
		optimizations:      DefaultOptimizations(),
		queryOptimizations: DefaultQueryOptimizations(),
		logger:             nopLogger{},
		metrics:            metrics.Nop{},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Migrate installs the vector extension.
func (db *VectorDb) Migrate(ctx context.Context) error {
	err := db.pg.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
	})
	if err != nil {
		return fmt.Errorf("failed to install the vector extension: %w", err)
	}
	return nil
}

// Close stops following invalidations from other processes. The Postgres
// client is owned by the caller and stays open.
func (db *VectorDb) Close() error {
	return db.meta.Close()
}

// open builds the Collection for a metadata document.
func (db *VectorDb) open(kind metastore.Kind, info vectordb.CollectionStateInfo) (*Collection, error) {
	personalized := kind == metastore.KindContent
	tables := tablesFor(info.CollectionID)
	routines, err := GenerateRoutines(tables, info.EmbeddingModel, personalized)
	if err != nil {
		return nil, err
	}
	return &Collection{
		info:         info.CollectionInfo,
		kind:         kind,
		personalized: personalized,
		tables:       tables,
		routines:     routines,
		pg:           db.pg,
		meta:         db.meta,
		cfg:          db.cfg,
		logger:       db.logger,
		metrics:      db.metrics,
		tracer:       db.tracer,
	}, nil
}
