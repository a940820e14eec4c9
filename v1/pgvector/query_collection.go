package pgvector

import "github.com/Aleph-Alpha/vectorcollections/v1/vectordb"

// QueryCollection stores query and session vectors next to a content
// collection. Its search routines are generated without personalization, so
// SimilarityQuery.UserID has no effect on it.
type QueryCollection struct {
	*Collection
}

var _ vectordb.QueryCollection = (*QueryCollection)(nil)

func (*QueryCollection) IsQueryCollection() {}
