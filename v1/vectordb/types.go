package vectordb

import (
	"fmt"
	"time"
)

// MetricType is the distance function an embedding model is trained for.
type MetricType string

const (
	MetricCosine MetricType = "COSINE"
	MetricEuclid MetricType = "EUCLID"
	MetricDot    MetricType = "DOT"
)

// MetricAggregationType combines per-part distances into one per-object distance.
type MetricAggregationType string

const (
	// AggregationMin favors the best-matching chunk of an object.
	AggregationMin MetricAggregationType = "MIN"
	// AggregationAvg favors the overall relevance of an object.
	AggregationAvg MetricAggregationType = "AVG"
)

// HNSWParameters configures the approximate-nearest-neighbour index of a collection.
type HNSWParameters struct {
	M              int `json:"m" yaml:"m"`
	EfConstruction int `json:"ef_construction" yaml:"ef_construction"`
}

// DefaultHNSWParameters mirrors the pgvector defaults.
func DefaultHNSWParameters() HNSWParameters {
	return HNSWParameters{M: 16, EfConstruction: 64}
}

// EmbeddingModelInfo describes the model whose vectors a collection stores.
// It is immutable once a collection is built from it.
type EmbeddingModelInfo struct {
	ID                    string                `json:"id"`
	Dimensions            int                   `json:"dimensions"`
	MetricType            MetricType            `json:"metric_type"`
	MetricAggregationType MetricAggregationType `json:"metric_aggregation_type"`
	HNSW                  HNSWParameters        `json:"hnsw"`
}

// Validate checks that the model can back a collection.
func (m EmbeddingModelInfo) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("embedding model id is required")
	}
	if m.Dimensions <= 0 {
		return fmt.Errorf("embedding model %s: dimensions must be positive, got %d", m.ID, m.Dimensions)
	}
	switch m.MetricType {
	case MetricCosine, MetricEuclid, MetricDot:
	default:
		return &UnsupportedMetricError{Metric: string(m.MetricType)}
	}
	switch m.MetricAggregationType {
	case AggregationMin, AggregationAvg:
	default:
		return fmt.Errorf("embedding model %s: unknown metric aggregation %q", m.ID, m.MetricAggregationType)
	}
	return nil
}

// CollectionInfo is the persisted configuration of one collection.
type CollectionInfo struct {
	CollectionID         string             `json:"collection_id"`
	EmbeddingModel       EmbeddingModelInfo `json:"embedding_model"`
	AppliedOptimizations []string           `json:"applied_optimizations"`
}

// HasOptimization reports whether name was already applied to the collection.
func (i CollectionInfo) HasOptimization(name string) bool {
	for _, applied := range i.AppliedOptimizations {
		if applied == name {
			return true
		}
	}
	return false
}

// CollectionWorkState is the blue/green lifecycle stage of a collection.
type CollectionWorkState string

const (
	// WorkStateRed marks a collection that is being built.
	WorkStateRed CollectionWorkState = "red"
	// WorkStateGreen marks a collection that is built but not serving.
	WorkStateGreen CollectionWorkState = "green"
	// WorkStateBlue marks the collection serving production traffic.
	WorkStateBlue CollectionWorkState = "blue"
)

// CollectionStateInfo is CollectionInfo plus its lifecycle state.
type CollectionStateInfo struct {
	CollectionInfo
	WorkState    CollectionWorkState `json:"work_state"`
	IndexCreated bool                `json:"index_created"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// IsBlue reports whether the collection currently serves production traffic.
func (s CollectionStateInfo) IsBlue() bool {
	return s.WorkState == WorkStateBlue
}

// QueryCollectionSuffix is appended to a model id to name its query collection.
const QueryCollectionSuffix = "_q"

// QueryCollectionID derives the query-collection id paired with a content collection.
func QueryCollectionID(modelID string) string {
	return modelID + QueryCollectionSuffix
}

// ObjectPart is one vector chunk of an object.
type ObjectPart struct {
	PartID    string    `json:"part_id"`
	Vector    []float32 `json:"vector,omitempty"`
	IsAverage bool      `json:"is_average"`
}

// Object is a content item (or a query/session item) with its vector parts.
//
// OriginalID links a personalized or derived object to the object it was built from.
type Object struct {
	ObjectID    string         `json:"object_id"`
	OriginalID  *string        `json:"original_id,omitempty"`
	UserID      *string        `json:"user_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	StorageMeta map[string]any `json:"storage_meta,omitempty"`
	Parts       []ObjectPart   `json:"parts"`
}

// ObjectCommonData is an object without its vector parts.
type ObjectCommonData struct {
	ObjectID    string         `json:"object_id"`
	OriginalID  *string        `json:"original_id,omitempty"`
	UserID      *string        `json:"user_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	StorageMeta map[string]any `json:"storage_meta,omitempty"`
}

// ObjectsCommonDataBatch is one page of a full collection enumeration.
type ObjectsCommonDataBatch struct {
	Objects    []ObjectCommonData `json:"objects"`
	Total      int                `json:"total"`
	NextOffset int                `json:"next_offset"`
}

// SortOrder is the direction of a sort field.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortByOptions orders results by a payload key or an object column.
type SortByOptions struct {
	Field           string    `json:"field"`
	Order           SortOrder `json:"order"`
	ForceNotPayload bool      `json:"force_not_payload"`
}

// SimilarityQuery describes one similarity search against a collection.
type SimilarityQuery struct {
	// Vector is the query embedding; its length must equal the model dimensions.
	Vector []float32 `json:"vector"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	// MaxDistance drops objects farther away than this distance.
	MaxDistance *float64 `json:"max_distance,omitempty"`

	// Filter restricts candidates before any distance is computed.
	Filter *PayloadFilter `json:"filter,omitempty"`

	SortBy *SortByOptions `json:"sort_by,omitempty"`

	// SimilarityFirst makes distance the primary key when SortBy is set.
	SimilarityFirst bool `json:"similarity_first"`

	// UserID prefers the user's personalized variants over their originals.
	UserID string `json:"user_id,omitempty"`

	// WithVectors returns part vectors alongside results.
	WithVectors bool `json:"with_vectors"`

	// MeanOnly ranks objects by their is_average part only.
	MeanOnly bool `json:"mean_only"`
}

// FoundObject is an object ranked by a similarity search.
type FoundObject struct {
	Object
	Distance float64 `json:"distance"`
}

// SearchResults is one page of similarity results.
type SearchResults struct {
	Found      []FoundObject `json:"found"`
	NextOffset *int          `json:"next_offset,omitempty"`
}

// ObjectsPage is one page of objects matched by a payload filter.
type ObjectsPage struct {
	Objects    []Object `json:"objects"`
	NextOffset *int     `json:"next_offset,omitempty"`
}
