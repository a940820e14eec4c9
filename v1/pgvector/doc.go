// Package pgvector implements vectordb.VectorDb on PostgreSQL with the
// pgvector extension.
//
// # Storage
//
// Every collection owns two tables:
//
//	vc_<id>_objects  object_id, original_id, user_id, payload jsonb, storage_meta jsonb
//	vc_<id>_parts    object_id, part_id, vector vector(N), is_average
//
// An object's distance to a query vector is the MIN or AVG (per embedding
// model) of its parts' distances.
//
// # Search routines
//
// Creating a collection installs eight plpgsql functions, one per
// combination of filtered/simple, ordered/unordered and with/without
// vectors. FindSimilarities picks one per call. Filters are translated to SQL
// by [Translate] and handed to the filtered routines, which apply them before
// computing any distance. Content collection routines also apply
// personalization: objects of other users are hidden and a user's variant of
// an object replaces the original.
//
// # Usage
//
//	db := pgvector.NewVectorDb(pg, cache, pgvector.DefaultConfig(), pgvector.WithLogger(log))
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
//	coll, err := db.CreateCollection(ctx, vectordb.EmbeddingModelInfo{
//	    ID:                    "minilm_v2",
//	    Dimensions:            384,
//	    MetricType:            vectordb.MetricCosine,
//	    MetricAggregationType: vectordb.AggregationMin,
//	})
//	if err != nil {
//	    return err
//	}
//
//	res, err := coll.FindSimilarities(ctx, vectordb.SimilarityQuery{
//	    Vector: embedding,
//	    Limit:  10,
//	    Filter: vectordb.NewPayloadFilter(vectordb.NewTerm("lang", "de")),
//	})
//
// # Locking
//
// LockObjects takes row locks with NOWAIT and retries contention with a
// fixed pause (Config.Lock). After the last attempt it fails with
// vectordb.LockAcquisitionError.
//
// # Optimizations
//
// ApplyOptimizations runs the configured [Optimization] list over every
// built collection. Each one is recorded on the collection once it succeeds
// and is skipped afterwards.
package pgvector
