// Package vectordb defines the backend-agnostic contract of the vector collection engine.
//
// # Overview
//
// The engine stores embedding vectors with their metadata, answers hybrid
// similarity + structured-filter searches and manages model rollover through
// a blue/green collection scheme. This package holds the types, the filter
// language and the interfaces; [github.com/Aleph-Alpha/vectorcollections/v1/pgvector]
// is the Postgres implementation.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                    Application Layer                        │
//	│        (uses vectordb.VectorDb / vectordb.Collection)       │
//	└──────────────────────────┬──────────────────────────────────┘
//	                           │
//	                           ▼
//	┌─────────────────────────────────────────────────────────────┐
//	│                      vectordb.VectorDb                      │
//	│      registry: create / get / delete / set blue / optimize  │
//	└──────────────┬──────────────────────────────┬───────────────┘
//	               │                              │
//	               ▼                              ▼
//	┌───────────────────────────┐  ┌───────────────────────────────┐
//	│   metastore.Cache         │  │   pgvector.Collection         │
//	│ (collection info, blue    │  │ (CRUD, locks, search through  │
//	│  pointer, invalidation)   │  │  generated search routines)   │
//	└───────────────────────────┘  └───────────────────────────────┘
//
// # Work States
//
// A collection is RED while its storage is being built, GREEN once built and
// BLUE while it serves production traffic. At most one collection and one
// query collection are BLUE at any time, and a BLUE collection cannot be deleted.
//
// # Filters
//
// Filters are trees of [Query] nodes:
//
//	filter := vectordb.NewPayloadFilter(vectordb.NewBool(
//	    vectordb.Must(
//	        vectordb.NewTerm("lang", "de"),
//	        vectordb.NewRange("year", vectordb.NumericRange{Gte: vectordb.Ptr(2020.0)}),
//	    ),
//	    vectordb.MustNot(vectordb.NewListHasAny("tags", "draft")),
//	))
//
// The JSON wire form names each node by a single key:
//
//	{"bool": {"must": [{"term": {"field": "lang", "value": "de"}}]}}
//
// # Errors
//
// Every failure the engine surfaces is either a typed error from this package
// or wraps one. Use errors.Is with the Err* sentinels or errors.As with the
// typed errors:
//
//	if errors.Is(err, vectordb.ErrDeleteBlueCollection) {
//	    // switch blue first
//	}
package vectordb
