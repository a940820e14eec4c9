package pgvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// ── Creation ─────────────────────────────────────────────────────────────────

// CreateCollection builds the tables and search routines for model. The
// collection is recorded RED before any DDL runs and GREEN once it is built,
// so a failed build stays visible and is resumed by the next call.
func (db *VectorDb) CreateCollection(ctx context.Context, model vectordb.EmbeddingModelInfo) (vectordb.Collection, error) {
	c, err := db.create(ctx, metastore.KindContent, model.ID, model)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (db *VectorDb) CreateQueryCollection(ctx context.Context, model vectordb.EmbeddingModelInfo) (vectordb.QueryCollection, error) {
	c, err := db.create(ctx, metastore.KindQuery, vectordb.QueryCollectionID(model.ID), model)
	if err != nil {
		return nil, err
	}
	return &QueryCollection{Collection: c}, nil
}

func (db *VectorDb) create(ctx context.Context, kind metastore.Kind, collectionID string, model vectordb.EmbeddingModelInfo) (_ *Collection, err error) {
	start := time.Now()
	ctx, span := db.tracer.StartSpan(ctx, "vectordb.create_collection")
	defer func() {
		db.tracer.RecordErrorOnSpan(span, err)
		span.End()
		db.metrics.ObserveOperation(collectionID, "create_collection", start, err)
	}()

	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCollectionID(collectionID); err != nil {
		return nil, err
	}

	info, err := db.meta.Get(ctx, kind, collectionID)
	recorded := err == nil
	if errors.Is(err, vectordb.ErrCollectionNotFound) {
		info = vectordb.CollectionStateInfo{
			CollectionInfo: vectordb.CollectionInfo{
				CollectionID:         collectionID,
				EmbeddingModel:       model,
				AppliedOptimizations: []string{},
			},
			WorkState: vectordb.WorkStateRed,
		}
		err = db.meta.AddCollection(ctx, kind, info)
		if errors.Is(err, metastore.ErrDocumentExists) {
			// Another instance recorded it after our snapshot was loaded;
			// AddCollection reloaded the snapshot.
			info, err = db.meta.Get(ctx, kind, collectionID)
			recorded = err == nil
		}
	}
	if err != nil {
		return nil, err
	}

	if recorded {
		if info.EmbeddingModel != model {
			return nil, fmt.Errorf("%w: %s was built for a different embedding model", vectordb.ErrCollectionExists, collectionID)
		}
		if info.WorkState != vectordb.WorkStateRed {
			return db.open(kind, info)
		}
		db.logger.Warn("resuming interrupted collection build", nil, map[string]interface{}{
			"collection_id": collectionID,
		})
	}

	c, err := db.open(kind, info)
	if err != nil {
		return nil, err
	}

	err = db.pg.Transaction(ctx, func(tx *gorm.DB) error {
		// Serializes concurrent builds of the same collection across processes.
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "vc_build:"+collectionID).Error; err != nil {
			return err
		}
		for _, stmt := range createTablesSQL(c.tables, model.Dimensions) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return installRoutines(tx, c.routines)
	})
	if err != nil {
		db.logger.Error("failed to build collection storage", err, map[string]interface{}{
			"collection_id": collectionID,
			"kind":          string(kind),
		})
		return nil, fmt.Errorf("failed to build collection %s: %w", collectionID, err)
	}

	info.WorkState = vectordb.WorkStateGreen
	if err := db.meta.UpdateCollection(ctx, kind, info); err != nil {
		return nil, err
	}
	db.logger.Info("collection created", nil, map[string]interface{}{
		"collection_id": collectionID,
		"kind":          string(kind),
		"dimensions":    model.Dimensions,
		"metric":        string(model.MetricType),
	})
	return c, nil
}

// ── Lookup ───────────────────────────────────────────────────────────────────

func (db *VectorDb) GetCollection(ctx context.Context, collectionID string) (vectordb.Collection, error) {
	info, err := db.meta.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return db.open(metastore.KindContent, info)
}

func (db *VectorDb) GetQueryCollection(ctx context.Context, collectionID string) (vectordb.QueryCollection, error) {
	info, err := db.meta.GetQueryCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return db.openQuery(info)
}

func (db *VectorDb) GetBlueCollection(ctx context.Context) (vectordb.Collection, error) {
	info, err := db.meta.GetBlueCollection(ctx)
	if err != nil {
		return nil, err
	}
	return db.open(metastore.KindContent, info)
}

func (db *VectorDb) GetBlueQueryCollection(ctx context.Context) (vectordb.QueryCollection, error) {
	info, err := db.meta.GetBlueQueryCollection(ctx)
	if err != nil {
		return nil, err
	}
	return db.openQuery(info)
}

func (db *VectorDb) openQuery(info vectordb.CollectionStateInfo) (vectordb.QueryCollection, error) {
	c, err := db.open(metastore.KindQuery, info)
	if err != nil {
		return nil, err
	}
	return &QueryCollection{Collection: c}, nil
}

func (db *VectorDb) CollectionExists(ctx context.Context, collectionID string) (bool, error) {
	return db.meta.Exists(ctx, metastore.KindContent, collectionID)
}

func (db *VectorDb) QueryCollectionExists(ctx context.Context, collectionID string) (bool, error) {
	return db.meta.Exists(ctx, metastore.KindQuery, collectionID)
}

func (db *VectorDb) ListCollections(ctx context.Context) ([]vectordb.CollectionStateInfo, error) {
	return db.meta.ListCollections(ctx)
}

func (db *VectorDb) ListQueryCollections(ctx context.Context) ([]vectordb.CollectionStateInfo, error) {
	return db.meta.ListQueryCollections(ctx)
}

// ── Blue/green ───────────────────────────────────────────────────────────────

func (db *VectorDb) SetBlueCollection(ctx context.Context, collectionID string) error {
	return db.meta.SetBlueCollection(ctx, collectionID)
}

func (db *VectorDb) DeleteCollection(ctx context.Context, collectionID string) error {
	return db.delete(ctx, metastore.KindContent, collectionID)
}

func (db *VectorDb) DeleteQueryCollection(ctx context.Context, collectionID string) error {
	return db.delete(ctx, metastore.KindQuery, collectionID)
}

// delete drops the storage of a collection while its document is held by the
// metastore. A blue collection is refused before anything is dropped.
func (db *VectorDb) delete(ctx context.Context, kind metastore.Kind, collectionID string) (err error) {
	start := time.Now()
	defer func() { db.metrics.ObserveOperation(collectionID, "delete_collection", start, err) }()

	info, err := db.meta.Get(ctx, kind, collectionID)
	if err != nil {
		return err
	}
	c, err := db.open(kind, info)
	if err != nil {
		return err
	}

	err = db.meta.DeleteCollection(ctx, kind, collectionID, func(ctx context.Context) error {
		return db.pg.Transaction(ctx, func(tx *gorm.DB) error {
			for _, stmt := range dropSQL(c.tables, c.routines) {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	db.logger.Info("collection deleted", nil, map[string]interface{}{
		"collection_id": collectionID,
		"kind":          string(kind),
	})
	return nil
}

// ── Optimizations ────────────────────────────────────────────────────────────

func (db *VectorDb) ApplyOptimizations(ctx context.Context) error {
	return db.applyOptimizations(ctx, metastore.KindContent, db.optimizations)
}

func (db *VectorDb) ApplyQueryOptimizations(ctx context.Context) error {
	return db.applyOptimizations(ctx, metastore.KindQuery, db.queryOptimizations)
}

// applyOptimizations works on up to OptimizationConcurrency collections at a
// time. Collections still being built are skipped.
func (db *VectorDb) applyOptimizations(ctx context.Context, kind metastore.Kind, opts []Optimization) error {
	infos, err := db.meta.List(ctx, kind)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.cfg.OptimizationConcurrency)
	for _, info := range infos {
		if info.WorkState == vectordb.WorkStateRed {
			continue
		}
		g.Go(func() error {
			return db.optimize(gctx, kind, info, opts)
		})
	}
	return g.Wait()
}

// optimize applies opts in order, recording each one right after it succeeds.
func (db *VectorDb) optimize(ctx context.Context, kind metastore.Kind, info vectordb.CollectionStateInfo, opts []Optimization) error {
	c, err := db.open(kind, info)
	if err != nil {
		return err
	}

	for _, o := range opts {
		name := o.Name()
		if info.HasOptimization(name) {
			continue
		}

		start := time.Now()
		spanCtx, span := db.tracer.StartSpan(ctx, "vectordb.apply_optimization")
		db.tracer.SetAttributes(span, map[string]interface{}{
			"collection.id": info.CollectionID,
			"optimization":  name,
		})
		err := o.Apply(spanCtx, c)
		if err == nil {
			_, err = db.meta.MarkOptimizationApplied(spanCtx, kind, info.CollectionID, name)
		}
		db.tracer.RecordErrorOnSpan(span, err)
		span.End()
		db.metrics.ObserveOperation(info.CollectionID, "optimize", start, err)
		if err != nil {
			db.logger.Error("optimization failed", err, map[string]interface{}{
				"collection_id": info.CollectionID,
				"optimization":  name,
			})
			return fmt.Errorf("optimization %s on collection %s: %w", name, info.CollectionID, err)
		}

		db.metrics.IncrementOptimizationsApplied(info.CollectionID, name)
		db.logger.Info("optimization applied", nil, map[string]interface{}{
			"collection_id": info.CollectionID,
			"optimization":  name,
			"duration":      time.Since(start).String(),
		})
	}
	return nil
}

// InvalidateCache reloads collection metadata from the metastore.
func (db *VectorDb) InvalidateCache(ctx context.Context) error {
	return db.meta.InvalidateCache(ctx)
}
