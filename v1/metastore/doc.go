// Package metastore keeps collection metadata: one document per collection
// and query collection plus the two blue pointers.
//
// Reads are served by [Cache] from memory. Writes go through to a
// [DocumentStore] first and update memory only once they are durable.
// [PostgresStore] is the production store; [MemoryStore] serves tests and
// single-process setups.
//
// The BLUE work state is never stored. It is derived from the blue pointer
// each time a document is read, so exactly one collection of each kind can be
// blue.
//
// With several processes sharing one store, a [RedisNotifier] tells the
// other caches to reload after every change.
package metastore
