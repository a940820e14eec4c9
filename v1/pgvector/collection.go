package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/vectorcollections/v1/metastore"
	"github.com/Aleph-Alpha/vectorcollections/v1/metrics"
	"github.com/Aleph-Alpha/vectorcollections/v1/postgres"
	"github.com/Aleph-Alpha/vectorcollections/v1/retry"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// Logger is the logging surface the engine needs. *logger.Logger satisfies it.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Row models. Table names are chosen per collection with .Table().

type objectRow struct {
	ObjectID    string            `gorm:"column:object_id;primaryKey"`
	OriginalID  *string           `gorm:"column:original_id"`
	UserID      *string           `gorm:"column:user_id"`
	Payload     datatypes.JSONMap `gorm:"column:payload"`
	StorageMeta datatypes.JSONMap `gorm:"column:storage_meta"`
}

type partRow struct {
	ObjectID  string     `gorm:"column:object_id;primaryKey"`
	PartID    string     `gorm:"column:part_id;primaryKey"`
	Vector    pgv.Vector `gorm:"column:vector"`
	IsAverage bool       `gorm:"column:is_average"`
}

type searchRow struct {
	ObjectID    string            `gorm:"column:object_id"`
	OriginalID  *string           `gorm:"column:original_id"`
	UserID      *string           `gorm:"column:user_id"`
	Payload     datatypes.JSONMap `gorm:"column:payload"`
	StorageMeta datatypes.JSONMap `gorm:"column:storage_meta"`
	Distance    float64           `gorm:"column:distance"`
	Parts       datatypes.JSON    `gorm:"column:parts"`
}

type searchPart struct {
	PartID    string    `json:"part_id"`
	IsAverage bool      `json:"is_average"`
	Vector    []float32 `json:"vector,omitempty"`
}

// Collection is the Postgres storage of one collection: an objects table and
// a parts table holding one vector per row.
type Collection struct {
	info         vectordb.CollectionInfo
	kind         metastore.Kind
	personalized bool
	tables       Tables
	routines     *RoutineSet

	pg   postgres.Client
	meta *metastore.Cache
	cfg  Config

	logger  Logger
	metrics metrics.MetricsCollector
	tracer  *tracer.Tracer

	// tx is set on the copy handed to a LockObjects callback.
	tx *gorm.DB
}

var _ vectordb.Collection = (*Collection)(nil)

func (c *Collection) Info() vectordb.CollectionInfo {
	info := c.info
	info.AppliedOptimizations = append([]string(nil), c.info.AppliedOptimizations...)
	return info
}

// Tables returns the table names of the collection.
func (c *Collection) Tables() Tables { return c.tables }

// Routines returns the search routines of the collection.
func (c *Collection) Routines() *RoutineSet { return c.routines }

func (c *Collection) StateInfo(ctx context.Context) (vectordb.CollectionStateInfo, error) {
	return c.meta.Get(ctx, c.kind, c.info.CollectionID)
}

// ── Writes ───────────────────────────────────────────────────────────────────

// Insert adds objects that must not exist yet. One duplicate fails the whole batch.
func (c *Collection) Insert(ctx context.Context, objects []vectordb.Object) (err error) {
	ctx, done := c.observe(ctx, "insert")
	defer func() { done(err) }()

	if len(objects) == 0 {
		return nil
	}
	ids := objectIDs(objects)
	if err := validateObjects(objects, c.info.EmbeddingModel.Dimensions); err != nil {
		return c.opError("insert", ids, err)
	}

	objRows, partRows := toRows(objects)
	err = c.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Table(c.tables.Objects).CreateInBatches(&objRows, c.cfg.BatchSize).Error; err != nil {
			return err
		}
		if len(partRows) == 0 {
			return nil
		}
		return tx.Table(c.tables.Parts).CreateInBatches(&partRows, c.cfg.BatchSize).Error
	})
	if err != nil {
		return c.opError("insert", ids, err)
	}
	return nil
}

func (c *Collection) Upsert(ctx context.Context, objects []vectordb.Object, shrinkParts bool) (err error) {
	ctx, done := c.observe(ctx, "upsert")
	defer func() { done(err) }()

	if len(objects) == 0 {
		return nil
	}
	ids := objectIDs(objects)
	if err := validateObjects(objects, c.info.EmbeddingModel.Dimensions); err != nil {
		return c.opError("upsert", ids, err)
	}

	objRows, partRows := toRows(objects)
	err = c.write(ctx, func(tx *gorm.DB) error {
		err := tx.Table(c.tables.Objects).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "object_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"original_id", "user_id", "payload", "storage_meta"}),
			}).
			CreateInBatches(&objRows, c.cfg.BatchSize).Error
		if err != nil {
			return err
		}

		if shrinkParts {
			if err := tx.Table(c.tables.Parts).Where("object_id IN ?", ids).Delete(&partRow{}).Error; err != nil {
				return err
			}
		} else if owners := averageOwners(objects); len(owners) > 0 {
			// A new average part replaces the stored one.
			err := tx.Table(c.tables.Parts).
				Where("object_id IN ? AND is_average", owners).
				Update("is_average", false).Error
			if err != nil {
				return err
			}
		}
		if len(partRows) == 0 {
			return nil
		}
		return tx.Table(c.tables.Parts).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "object_id"}, {Name: "part_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"vector", "is_average"}),
			}).
			CreateInBatches(&partRows, c.cfg.BatchSize).Error
	})
	if err != nil {
		return c.opError("upsert", ids, err)
	}
	return nil
}

// Delete removes objects with their parts. Unknown ids are ignored.
func (c *Collection) Delete(ctx context.Context, objectIDs []string) (err error) {
	ctx, done := c.observe(ctx, "delete")
	defer func() { done(err) }()

	if len(objectIDs) == 0 {
		return nil
	}
	err = c.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Table(c.tables.Parts).Where("object_id IN ?", objectIDs).Delete(&partRow{}).Error; err != nil {
			return err
		}
		return tx.Table(c.tables.Objects).Where("object_id IN ?", objectIDs).Delete(&objectRow{}).Error
	})
	if err != nil {
		return c.opError("delete", objectIDs, err)
	}
	return nil
}

// lockContention marks a failed lock statement so that errors returned by the
// callback are never mistaken for contention.
type lockContention struct{ err error }

func (e *lockContention) Error() string { return e.err.Error() }
func (e *lockContention) Unwrap() error { return e.err }

// LockObjects takes FOR UPDATE NOWAIT row locks on objectIDs and runs fn in
// the same transaction. When another transaction holds any of the rows the
// whole attempt is rolled back and retried after a fixed wait. Ids that do not
// exist are not locked.
//
// Example:
//
//	err := coll.LockObjects(ctx, []string{"a"}, func(ctx context.Context, locked vectordb.Collection) error {
//		objs, err := locked.FindByIDs(ctx, []string{"a"}, true)
//		if err != nil {
//			return err
//		}
//		return locked.Upsert(ctx, adjust(objs), false)
//	})
func (c *Collection) LockObjects(ctx context.Context, objectIDs []string, fn func(ctx context.Context, locked vectordb.Collection) error, opts ...vectordb.LockOption) (err error) {
	ctx, done := c.observe(ctx, "lock_objects")
	defer func() { done(err) }()

	o := vectordb.LockOptions{MaxAttempts: c.cfg.Lock.MaxAttempts, Wait: c.cfg.Lock.Wait}
	for _, opt := range opts {
		opt(&o)
	}

	// Lock in a stable order so two lockers of overlapping sets cannot deadlock.
	ids := append([]string(nil), objectIDs...)
	sort.Strings(ids)

	isContention := func(err error) bool {
		var lc *lockContention
		return errors.As(err, &lc)
	}

	attempts, err := retry.Do(ctx, retry.Policy{MaxAttempts: o.MaxAttempts, Wait: o.Wait}, isContention,
		func(ctx context.Context) error {
			return c.write(ctx, func(tx *gorm.DB) error {
				if len(ids) > 0 {
					var locked []string
					err := tx.Table(c.tables.Objects).
						Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
						Where("object_id IN ?", ids).
						Order("object_id").
						Pluck("object_id", &locked).Error
					if err != nil {
						if postgres.IsLockContention(err) {
							return &lockContention{err: err}
						}
						return err
					}
				}
				return fn(ctx, c.withTx(tx))
			})
		},
		func(attempt int, err error, wait time.Duration) {
			c.metrics.IncrementLockRetries(c.info.CollectionID)
			c.logger.Warn("objects are locked by another transaction, retrying", err, map[string]interface{}{
				"collection_id": c.info.CollectionID,
				"attempt":       attempt,
				"wait":          wait.String(),
				"object_count":  len(ids),
			})
		},
	)

	if errors.Is(err, retry.ErrExhausted) {
		var lc *lockContention
		cause := err
		if errors.As(err, &lc) {
			cause = lc.err
		}
		return &vectordb.LockAcquisitionError{
			CollectionID: c.info.CollectionID,
			ObjectIDs:    objectIDs,
			Attempts:     attempts,
			Err:          cause,
		}
	}
	return err
}

// ── Lookups ──────────────────────────────────────────────────────────────────

func (c *Collection) FindByIDs(ctx context.Context, objectIDs []string, withVectors bool) (objs []vectordb.Object, err error) {
	ctx, done := c.observe(ctx, "find_by_ids")
	defer func() { done(err) }()
	return c.findBy(ctx, "object_id", objectIDs, withVectors)
}

func (c *Collection) FindByOriginalIDs(ctx context.Context, originalIDs []string, withVectors bool) (objs []vectordb.Object, err error) {
	ctx, done := c.observe(ctx, "find_by_original_ids")
	defer func() { done(err) }()
	return c.findBy(ctx, "original_id", originalIDs, withVectors)
}

func (c *Collection) findBy(ctx context.Context, column string, values []string, withVectors bool) ([]vectordb.Object, error) {
	if len(values) == 0 {
		return []vectordb.Object{}, nil
	}

	var out []vectordb.Object
	err := c.read(ctx, func(db *gorm.DB) error {
		var rows []objectRow
		if err := db.Table(c.tables.Objects).Where(column+" IN ?", values).Order("object_id").Find(&rows).Error; err != nil {
			return err
		}
		var err error
		out, err = c.withParts(db, rows, withVectors)
		return err
	})
	return out, err
}

// GetTotal counts objects. With originalsOnly, personalized and derived
// objects (those with an original_id) are left out.
func (c *Collection) GetTotal(ctx context.Context, originalsOnly bool) (total int, err error) {
	ctx, done := c.observe(ctx, "get_total")
	defer func() { done(err) }()

	var n int64
	err = c.read(ctx, func(db *gorm.DB) error {
		return c.objectsScope(db, originalsOnly).Count(&n).Error
	})
	return int(n), err
}

// GetObjectsCommonDataBatch pages through objects without their parts, ordered by id.
func (c *Collection) GetObjectsCommonDataBatch(ctx context.Context, limit, offset int, originalsOnly bool) (batch *vectordb.ObjectsCommonDataBatch, err error) {
	ctx, done := c.observe(ctx, "get_objects_batch")
	defer func() { done(err) }()

	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}

	var (
		total int64
		rows  []objectRow
	)
	err = c.read(ctx, func(db *gorm.DB) error {
		if err := c.objectsScope(db, originalsOnly).Count(&total).Error; err != nil {
			return err
		}
		return c.objectsScope(db, originalsOnly).Order("object_id").Limit(limit).Offset(offset).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	batch = &vectordb.ObjectsCommonDataBatch{
		Objects: make([]vectordb.ObjectCommonData, len(rows)),
		Total:   int(total),
	}
	for i, r := range rows {
		batch.Objects[i] = commonData(r)
	}
	batch.NextOffset = min(offset+len(rows), int(total))
	return batch, nil
}

func (c *Collection) objectsScope(db *gorm.DB, originalsOnly bool) *gorm.DB {
	q := db.Table(c.tables.Objects)
	if originalsOnly {
		q = q.Where("original_id IS NULL")
	}
	return q
}

// ── Payload filters ──────────────────────────────────────────────────────────

func (c *Collection) CountByPayloadFilter(ctx context.Context, filter *vectordb.PayloadFilter) (count int, err error) {
	ctx, done := c.observe(ctx, "count_by_filter")
	defer func() { done(err) }()

	tr, err := Translate(filter, "o", c.cfg.Language)
	if err != nil {
		return 0, err
	}
	where, args := tr.Where()

	var n int64
	err = c.read(ctx, func(db *gorm.DB) error {
		return db.Table(c.tables.QuotedObjects()+" AS o").Where(where, args...).Count(&n).Error
	})
	return int(n), err
}

func (c *Collection) FindByPayloadFilter(ctx context.Context, filter *vectordb.PayloadFilter, limit, offset int, withVectors bool) (page *vectordb.ObjectsPage, err error) {
	ctx, done := c.observe(ctx, "find_by_filter")
	defer func() { done(err) }()

	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}
	tr, err := Translate(filter, "o", c.cfg.Language)
	if err != nil {
		return nil, err
	}
	where, args := tr.Where()

	var objs []vectordb.Object
	err = c.read(ctx, func(db *gorm.DB) error {
		var rows []objectRow
		err := db.Table(c.tables.QuotedObjects()+" AS o").
			Select("o.object_id, o.original_id, o.user_id, o.payload, o.storage_meta").
			Where(where, args...).
			Order("o.object_id").
			Limit(limit + 1).
			Offset(offset).
			Find(&rows).Error
		if err != nil {
			return err
		}
		objs, err = c.withParts(db, rows, withVectors)
		return err
	})
	if err != nil {
		return nil, err
	}

	page = &vectordb.ObjectsPage{Objects: objs}
	if len(objs) > limit {
		page.Objects = objs[:limit]
		page.NextOffset = vectordb.Ptr(offset + limit)
	}
	return page, nil
}

// ── Similarity search ────────────────────────────────────────────────────────

// FindSimilarities ranks objects by the aggregated distance of their parts to
// q.Vector. Filters run inside the search routine before any distance is
// computed. With SortBy set, the unordered routine returns every candidate in
// range and ordering happens here.
func (c *Collection) FindSimilarities(ctx context.Context, q vectordb.SimilarityQuery) (res *vectordb.SearchResults, err error) {
	ctx, done := c.observe(ctx, "find_similarities")
	defer func() { done(err) }()

	if len(q.Vector) != c.info.EmbeddingModel.Dimensions {
		return nil, &vectordb.DimensionMismatchError{Expected: c.info.EmbeddingModel.Dimensions, Got: len(q.Vector)}
	}
	if err := validatePage(q.Limit, q.Offset); err != nil {
		return nil, err
	}

	var solid string
	if q.Filter != nil {
		tr, err := Translate(q.Filter, "o", c.cfg.Language)
		if err != nil {
			return nil, err
		}
		solid = tr.SolidClause()
	}

	var userID *string
	if c.personalized && q.UserID != "" {
		userID = &q.UserID
	}

	variant := RoutineVariant{Filtered: solid != "", Ordered: q.SortBy == nil, WithVectors: q.WithVectors}
	args := []any{pgv.NewVector(q.Vector), userID, q.MaxDistance, q.MeanOnly}
	if variant.Ordered {
		args = append(args, q.Limit+1, q.Offset)
	}
	if variant.Filtered {
		args = append(args, solid)
	}

	query := c.routines.Invocation(variant)
	if !variant.Ordered {
		order, orderArgs, err := sortExpression(*q.SortBy, q.SimilarityFirst)
		if err != nil {
			return nil, err
		}
		query = "SELECT * FROM (" + query + ") r ORDER BY " + order + " LIMIT ? OFFSET ?"
		args = append(args, orderArgs...)
		args = append(args, q.Limit+1, q.Offset)
	}

	var rows []searchRow
	err = c.read(ctx, func(db *gorm.DB) error {
		rows = nil
		return db.Raw(query, args...).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search on collection %s: %w", c.info.CollectionID, err)
	}

	res = &vectordb.SearchResults{Found: make([]vectordb.FoundObject, 0, min(len(rows), q.Limit))}
	for i, row := range rows {
		if i == q.Limit {
			res.NextOffset = vectordb.Ptr(q.Offset + q.Limit)
			break
		}
		found, err := row.toFound()
		if err != nil {
			return nil, err
		}
		res.Found = append(res.Found, found)
	}
	return res, nil
}

// sortExpression orders the rows of an unordered routine. Payload fields
// compare as jsonb, so numbers sort numerically and strings lexically.
func sortExpression(opts vectordb.SortByOptions, similarityFirst bool) (string, []any, error) {
	direction := "ASC"
	switch opts.Order {
	case "", vectordb.SortAsc:
	case vectordb.SortDesc:
		direction = "DESC"
	default:
		return "", nil, vectordb.NewInvalidFilterError("unknown sort order %q", opts.Order)
	}

	var (
		field string
		args  []any
	)
	if opts.ForceNotPayload {
		if !columnFields[opts.Field] {
			return "", nil, vectordb.NewInvalidFilterError("cannot sort by column %q", opts.Field)
		}
		field = "r." + opts.Field
	} else {
		keys, err := payloadKeys(vectordb.Leaf{Field: opts.Field})
		if err != nil {
			return "", nil, err
		}
		field = "r.payload"
		for _, k := range keys {
			field += " -> ?::text"
			args = append(args, k)
		}
	}

	sortKey := field + " " + direction + " NULLS LAST"
	if similarityFirst {
		return "r.distance, " + sortKey + ", r.object_id", args, nil
	}
	return sortKey + ", r.distance, r.object_id", args, nil
}

// CreateIndex builds the HNSW index over part vectors, reinstalls the search
// routines and records the index on the collection document.
func (c *Collection) CreateIndex(ctx context.Context) (err error) {
	ctx, done := c.observe(ctx, "create_index")
	defer func() { done(err) }()

	indexSQL, err := hnswIndexSQL(c.tables, c.info.EmbeddingModel)
	if err != nil {
		return err
	}
	err = c.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(indexSQL).Error; err != nil {
			return err
		}
		return installRoutines(tx, c.routines)
	})
	if err != nil {
		return fmt.Errorf("failed to create index on collection %s: %w", c.info.CollectionID, err)
	}

	state, err := c.meta.Get(ctx, c.kind, c.info.CollectionID)
	if err != nil {
		return err
	}
	if state.IndexCreated {
		return nil
	}
	state.IndexCreated = true
	return c.meta.UpdateCollection(ctx, c.kind, state)
}

func installRoutines(tx *gorm.DB, routines *RoutineSet) error {
	for _, r := range routines.All() {
		if err := tx.Exec(r.CreateSQL).Error; err != nil {
			return fmt.Errorf("failed to install search routine %s: %w", r.Name, err)
		}
	}
	return nil
}

// ── Internals ────────────────────────────────────────────────────────────────

func (c *Collection) withTx(tx *gorm.DB) *Collection {
	bound := *c
	bound.tx = tx
	return &bound
}

// write runs fn in a transaction, or in a savepoint of the bound transaction.
func (c *Collection) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if c.tx != nil {
		return c.tx.WithContext(ctx).Transaction(fn)
	}
	return c.pg.Transaction(ctx, fn)
}

// read runs fn on the bound transaction, or on the pool with connection fallback.
func (c *Collection) read(ctx context.Context, fn func(db *gorm.DB) error) error {
	if c.tx != nil {
		return fn(c.tx.WithContext(ctx))
	}
	return c.pg.WithReadFallback(ctx, fn)
}

func (c *Collection) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := c.tracer.StartSpan(ctx, "collection."+op)
	c.tracer.SetAttributes(span, map[string]interface{}{
		"collection.id":   c.info.CollectionID,
		"collection.kind": string(c.kind),
	})
	return ctx, func(err error) {
		c.tracer.RecordErrorOnSpan(span, err)
		span.End()
		c.metrics.ObserveOperation(c.info.CollectionID, op, start, err)
	}
}

func (c *Collection) opError(op string, ids []string, err error) error {
	return &vectordb.OperationError{Op: op, CollectionID: c.info.CollectionID, ObjectIDs: ids, Err: err}
}

// withParts loads the parts of rows and assembles objects in row order.
func (c *Collection) withParts(db *gorm.DB, rows []objectRow, withVectors bool) ([]vectordb.Object, error) {
	out := make([]vectordb.Object, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ObjectID
	}

	columns := []string{"object_id", "part_id", "is_average"}
	if withVectors {
		columns = append(columns, "vector")
	}
	var parts []partRow
	err := db.Table(c.tables.Parts).Select(columns).Where("object_id IN ?", ids).Order("object_id, part_id").Find(&parts).Error
	if err != nil {
		return nil, err
	}

	byObject := make(map[string][]vectordb.ObjectPart, len(rows))
	for _, p := range parts {
		part := vectordb.ObjectPart{PartID: p.PartID, IsAverage: p.IsAverage}
		if withVectors {
			part.Vector = p.Vector.Slice()
		}
		byObject[p.ObjectID] = append(byObject[p.ObjectID], part)
	}

	for i, r := range rows {
		cd := commonData(r)
		out[i] = vectordb.Object{
			ObjectID:    cd.ObjectID,
			OriginalID:  cd.OriginalID,
			UserID:      cd.UserID,
			Payload:     cd.Payload,
			StorageMeta: cd.StorageMeta,
			Parts:       byObject[r.ObjectID],
		}
	}
	return out, nil
}

func (row searchRow) toFound() (vectordb.FoundObject, error) {
	var parts []searchPart
	if len(row.Parts) > 0 {
		if err := json.Unmarshal(row.Parts, &parts); err != nil {
			return vectordb.FoundObject{}, fmt.Errorf("failed to decode parts of object %s: %w", row.ObjectID, err)
		}
	}

	found := vectordb.FoundObject{
		Object: vectordb.Object{
			ObjectID:    row.ObjectID,
			OriginalID:  row.OriginalID,
			UserID:      row.UserID,
			Payload:     map[string]any(row.Payload),
			StorageMeta: map[string]any(row.StorageMeta),
			Parts:       make([]vectordb.ObjectPart, len(parts)),
		},
		Distance: row.Distance,
	}
	for i, p := range parts {
		found.Parts[i] = vectordb.ObjectPart{PartID: p.PartID, Vector: p.Vector, IsAverage: p.IsAverage}
	}
	return found, nil
}

func commonData(r objectRow) vectordb.ObjectCommonData {
	return vectordb.ObjectCommonData{
		ObjectID:    r.ObjectID,
		OriginalID:  r.OriginalID,
		UserID:      r.UserID,
		Payload:     map[string]any(r.Payload),
		StorageMeta: map[string]any(r.StorageMeta),
	}
}

func toRows(objects []vectordb.Object) ([]objectRow, []partRow) {
	objRows := make([]objectRow, len(objects))
	var partRows []partRow
	for i, o := range objects {
		objRows[i] = objectRow{
			ObjectID:    o.ObjectID,
			OriginalID:  o.OriginalID,
			UserID:      o.UserID,
			Payload:     jsonMap(o.Payload),
			StorageMeta: jsonMap(o.StorageMeta),
		}
		for _, p := range o.Parts {
			partRows = append(partRows, partRow{
				ObjectID:  o.ObjectID,
				PartID:    p.PartID,
				Vector:    pgv.NewVector(p.Vector),
				IsAverage: p.IsAverage,
			})
		}
	}
	return objRows, partRows
}

func jsonMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(m)
}

func objectIDs(objects []vectordb.Object) []string {
	ids := make([]string, len(objects))
	for i, o := range objects {
		ids[i] = o.ObjectID
	}
	return ids
}

// validateObjects checks a batch before any statement runs.
// averageOwners lists the objects that carry an average part.
func averageOwners(objects []vectordb.Object) []string {
	var out []string
	for _, o := range objects {
		for _, p := range o.Parts {
			if p.IsAverage {
				out = append(out, o.ObjectID)
				break
			}
		}
	}
	return out
}

func validateObjects(objects []vectordb.Object, dimensions int) error {
	seen := make(map[string]bool, len(objects))
	for _, o := range objects {
		if o.ObjectID == "" {
			return errors.New("object id is required")
		}
		if seen[o.ObjectID] {
			return fmt.Errorf("object %s appears twice in the batch", o.ObjectID)
		}
		seen[o.ObjectID] = true

		parts := make(map[string]bool, len(o.Parts))
		averages := 0
		for _, p := range o.Parts {
			if p.PartID == "" {
				return fmt.Errorf("object %s has a part without id", o.ObjectID)
			}
			if parts[p.PartID] {
				return fmt.Errorf("object %s has part %s twice", o.ObjectID, p.PartID)
			}
			parts[p.PartID] = true
			if len(p.Vector) != dimensions {
				return &vectordb.DimensionMismatchError{Expected: dimensions, Got: len(p.Vector)}
			}
			if p.IsAverage {
				averages++
			}
		}
		if averages > 1 {
			return fmt.Errorf("object %s has %d average parts, at most one is allowed", o.ObjectID, averages)
		}
	}
	return nil
}

func validatePage(limit, offset int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", offset)
	}
	return nil
}
