// Package db defines the storage engine contract behind the parameter stores.
// An engine is a versioned key-value table: every stored entry carries the write
// index of the batch that wrote it, and batches are applied atomically after
// their recorded reads have been validated.
//
// Key Components:
//
//   - KVDB Interface: The contract every engine satisfies. Get is a dirty point read,
//     Scan is a consistent iteration that also reports the write index it observed,
//     Commit validates and applies a Batch, Save/Load move the whole table through
//     the shared snapshot format.
//
//   - Batch: The unit of commit. It carries the read set (key + version, where version
//     0 means "was absent"), an optional scan marker and the buffered writes. A batch
//     whose read set is stale yields ErrConflict and nothing of it is applied.
//
//   - Feature Flags: Engines advertise their capabilities through SupportsFeature
//     so the conformance suite can skip what an engine does not provide.
//
//   - Database Information: DatabaseInfo reports size estimates, the engine type and
//     engine specific metadata.
//
// Note on Write Indices:
//   - The write index is supplied by the caller. A local store uses a counter, the
//     replicated store uses the raft log index so all replicas assign identical versions.
//   - Write indices of applied batches are strictly increasing. A batch carrying a write
//     index that is not larger than the current one is rejected.
//   - Read only batches are validated but never advance the write index.
//
// Related Packages:
//
// The engines/maple package provides the sharded in-memory engine, engines/sqlite an
// engine backed by an embedded SQLite database. The testing package holds the
// conformance suite (RunKVDBTests) and benchmarks (RunKVDBBenchmarks) both engines run.
package db
