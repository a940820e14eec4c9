package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aleph-Alpha/vectorcollections/v1/vectordb"
)

// ErrDocumentExists is returned by Insert when the collection id is already
// recorded, possibly by another process.
var ErrDocumentExists = errors.New("collection document already exists")

// Kind separates content collections from query collections. Each kind has
// its own documents and its own blue pointer.
type Kind string

const (
	KindContent Kind = "content"
	KindQuery   Kind = "query"
)

// Kinds lists every kind in a fixed order. Stores lock pointers in this order.
var Kinds = []Kind{KindContent, KindQuery}

// Snapshot is the full durable state at one point in time.
//
// Stored work states are RED or GREEN only; BLUE is derived from Blue.
type Snapshot struct {
	Documents map[Kind]map[string]vectordb.CollectionStateInfo
	Blue      map[Kind]string
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	s := &Snapshot{
		Documents: make(map[Kind]map[string]vectordb.CollectionStateInfo, len(Kinds)),
		Blue:      make(map[Kind]string, len(Kinds)),
	}
	for _, k := range Kinds {
		s.Documents[k] = map[string]vectordb.CollectionStateInfo{}
	}
	return s
}

// DocumentStore is the durable backend of the collection info cache.
//
//go:generate mockgen -source=store.go -destination=mock_store.go -package=metastore
type DocumentStore interface {
	// Load reads every document and blue pointer.
	Load(ctx context.Context) (*Snapshot, error)

	// Insert records a new document. It never replaces a stored one and fails
	// with ErrDocumentExists instead.
	Insert(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) error

	// Update replaces the work state and index flag of a stored document and
	// returns the stored result. The embedding model and the applied
	// optimizations are kept from the stored document; a different model fails
	// with ErrCollectionExists and a missing document with CollectionNotFoundError.
	Update(ctx context.Context, kind Kind, info vectordb.CollectionStateInfo) (vectordb.CollectionStateInfo, error)

	// AppendOptimization records name on a document unless it is already
	// there and returns the updated document.
	AppendOptimization(ctx context.Context, kind Kind, collectionID, name string) (vectordb.CollectionStateInfo, error)

	// Delete removes a document. It fails with DeleteBlueCollectionError when
	// the blue pointer of kind names collectionID, checked atomically with the
	// removal. beforeCommit runs after the check and before the removal becomes
	// visible; its error aborts the delete.
	Delete(ctx context.Context, kind Kind, collectionID string, beforeCommit func(ctx context.Context) error) error

	// SetBlue makes collectionID the blue content collection. When its query
	// collection is stored, the query pointer moves in the same atomic step.
	// It returns the pointers it moved.
	SetBlue(ctx context.Context, collectionID string) (map[Kind]string, error)
}

// applyUpdate copies the fields an update may change onto the stored document.
func applyUpdate(stored, info vectordb.CollectionStateInfo) (vectordb.CollectionStateInfo, error) {
	if stored.EmbeddingModel != info.EmbeddingModel {
		return stored, fmt.Errorf("%w: %s is recorded with model %s", vectordb.ErrCollectionExists, stored.CollectionID, stored.EmbeddingModel.ID)
	}
	stored.WorkState = storedForm(info).WorkState
	stored.IndexCreated = stored.IndexCreated || info.IndexCreated
	return stored, nil
}
