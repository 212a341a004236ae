// Package store provides the transactional layer between the parameter store and
// the db.KVDB engines: a unified store interface, the optimistic transaction runner
// and the structured error type shared by all stores.
//
// Key Components:
//
//   - IStore Interface: Transaction for all writes and consistent reads, plus dirty
//     Get/Scan for reads that may race with in-flight writes. Local and replicated
//     stores implement it, so applications switch between them without code changes.
//
//   - RunTransaction: Optimistic concurrency control. A transaction reads through a
//     Backend, records the version of everything it read and buffers its writes.
//     The buffered writes are committed as one db.Batch that the engine only applies
//     if all recorded versions are still current. Conflicting transactions are
//     re-executed from scratch (TxnOptions.Retries), then reported as
//     ErrTransactionAborted. Counters and a latency histogram are published with
//     VictoriaMetrics/metrics (rtparam_txn_*).
//
//   - Error System: *Error carries a RetCode and a message. Errors compare by code
//     with errors.Is, so callers test against the sentinels ErrScopeNotFound and
//     ErrTransactionAborted.
//
//   - DBFactory: A function type that abstracts the creation of the underlying db.KVDB.
//
// Implementations:
//
//	- Local Store (lstore): Directly uses a db.KVDB instance and supplies write indices
//	  from an atomic counter. Suitable for single node deployments and tests.
//
//	- Distributed Store (dstore): Proposes commit batches to a Dragonboat RAFT shard
//	  and uses the raft log index as write index, so every replica applies the same
//	  batches with the same versions.
package store
