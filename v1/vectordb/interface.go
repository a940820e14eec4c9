package vectordb

import (
	"context"
	"time"
)

// VectorDb is the entry point of the engine. It creates, fetches and deletes
// collections and their query counterparts, owns the blue designation and
// fans optimizations out to every collection.
//
// Example usage:
//
//	coll, err := db.GetBlueCollection(ctx)
//	if err != nil {
//	    return err
//	}
//	res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{Vector: vec, Limit: 10})
type VectorDb interface {
	// CreateCollection builds the storage for a model and records it GREEN.
	// Calling it again with an identical model is a no-op returning the existing collection.
	CreateCollection(ctx context.Context, model EmbeddingModelInfo) (Collection, error)

	// CreateQueryCollection builds the query collection paired with model.
	CreateQueryCollection(ctx context.Context, model EmbeddingModelInfo) (QueryCollection, error)

	GetCollection(ctx context.Context, collectionID string) (Collection, error)
	GetQueryCollection(ctx context.Context, collectionID string) (QueryCollection, error)

	// GetBlueCollection returns the collection currently serving traffic,
	// or a CollectionNotFoundError when none was ever set.
	GetBlueCollection(ctx context.Context) (Collection, error)
	GetBlueQueryCollection(ctx context.Context) (QueryCollection, error)

	CollectionExists(ctx context.Context, collectionID string) (bool, error)
	QueryCollectionExists(ctx context.Context, collectionID string) (bool, error)

	ListCollections(ctx context.Context) ([]CollectionStateInfo, error)
	ListQueryCollections(ctx context.Context) ([]CollectionStateInfo, error)

	// SetBlueCollection atomically moves the blue pointer to collectionID,
	// and the query pointer to its query collection when one exists.
	SetBlueCollection(ctx context.Context, collectionID string) error

	// DeleteCollection drops a collection. It fails with DeleteBlueCollectionError
	// while the collection is blue.
	DeleteCollection(ctx context.Context, collectionID string) error
	DeleteQueryCollection(ctx context.Context, collectionID string) error

	// ApplyOptimizations applies every optimization not yet recorded on each collection.
	ApplyOptimizations(ctx context.Context) error
	ApplyQueryOptimizations(ctx context.Context) error

	// InvalidateCache reloads collection metadata from durable storage.
	InvalidateCache(ctx context.Context) error

	Close() error
}

// Collection is one physical storage unit: an objects table and a parts table.
type Collection interface {
	Info() CollectionInfo
	StateInfo(ctx context.Context) (CollectionStateInfo, error)

	// Insert adds new objects with all their parts in one transaction.
	Insert(ctx context.Context, objects []Object) error

	// Upsert writes objects. With shrinkParts all existing parts of the
	// touched objects are removed first; otherwise parts are upserted by
	// (object_id, part_id).
	Upsert(ctx context.Context, objects []Object, shrinkParts bool) error

	// Delete removes objects and their parts in one transaction.
	Delete(ctx context.Context, objectIDs []string) error

	// LockObjects holds row locks on objectIDs while fn runs. fn receives a
	// collection bound to the locking transaction; returning an error rolls it back.
	LockObjects(ctx context.Context, objectIDs []string, fn func(ctx context.Context, locked Collection) error, opts ...LockOption) error

	FindByIDs(ctx context.Context, objectIDs []string, withVectors bool) ([]Object, error)
	FindByOriginalIDs(ctx context.Context, originalIDs []string, withVectors bool) ([]Object, error)

	GetTotal(ctx context.Context, originalsOnly bool) (int, error)
	GetObjectsCommonDataBatch(ctx context.Context, limit, offset int, originalsOnly bool) (*ObjectsCommonDataBatch, error)

	CountByPayloadFilter(ctx context.Context, filter *PayloadFilter) (int, error)
	FindByPayloadFilter(ctx context.Context, filter *PayloadFilter, limit, offset int, withVectors bool) (*ObjectsPage, error)

	FindSimilarities(ctx context.Context, query SimilarityQuery) (*SearchResults, error)

	// CreateIndex builds the HNSW index and reinstalls the search routines.
	CreateIndex(ctx context.Context) error
}

// QueryCollection stores session and query vectors. It shares the Collection
// layout; personalization by user id does not apply to it.
type QueryCollection interface {
	Collection
	IsQueryCollection()
}

// LockOptions bounds LockObjects retries on contention.
type LockOptions struct {
	MaxAttempts int
	Wait        time.Duration
}

// LockOption overrides a LockOptions field.
type LockOption func(*LockOptions)

// WithLockAttempts sets how often lock acquisition is tried before giving up.
func WithLockAttempts(n int) LockOption {
	return func(o *LockOptions) {
		o.MaxAttempts = n
	}
}

// WithLockWait sets the fixed pause between lock attempts.
func WithLockWait(d time.Duration) LockOption {
	return func(o *LockOptions) {
		o.Wait = d
	}
}
