// Package store provides the SQLite-backed collection catalog.
//
// The store holds three tables:
//   - collections: one row per collection schema, the full schema as JSON
//   - records: the records of every collection, validated against its schema
//   - migrations: the ids of applied catalog migrations
//
// # Catalog Handle
//
// Catalog is the interface migrations and services are written against. Store
// implements it with one transaction per call; Tx implements it inside a
// caller-scoped transaction, which is how the migration runner makes each
// migration step atomic together with its applied-state write.
//
// # Deletes and Relations
//
// Deleting a collection never leaves a relation field pointing at a missing
// collection id. Relation fields in other collections that target the deleted
// collection are removed from their schemas. With cascadeDelete the records
// holding such a reference are deleted; without it only the reference value
// is dropped (nulled) and the record survives.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: records are removed with their collection
//
// All queries that return lists order by created ASC, id ASC COLLATE BINARY
// so results are deterministic.
package store
