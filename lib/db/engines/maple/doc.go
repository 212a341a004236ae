// Package maple implements a sharded, versioned in-memory table that satisfies the
// db.KVDB interface. It is the default engine behind the local and the raft
// replicated parameter stores.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages the
//     shards and the write index of the last applied batch. The write index is not
//     generated by the engine but supplied by the caller with every commit, so the
//     caller can choose where indices come from (a local counter, the raft log index, ...).
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are hashed with
//     a per-instance maphash seed (util.HashString) and right-shifted by 7 bits before picking a
//     shard, which keeps the distribution even at minimal cost.
//
//   - Entry: The stored value plus the write index of the batch that wrote it. This index
//     is the entry's version and is what optimistic transactions validate against.
//
// Concurrency:
//
//   - Get is lock free and returns a copy of a single entry. It gives no isolation
//     guarantees beyond "never a torn entry" and is used for dirty reads.
//
//   - Commit validates a db.Batch and applies its writes while holding the write side of
//     a RWMutex. Scan, Save and GetInfo hold the read side, so a scan either sees all
//     writes of a batch or none of them.
//
//   - Validation compares the recorded version of every read with the current one
//     (0 = absent). A batch that scanned the table additionally requires that no other
//     batch has been applied since the scan. Any mismatch yields db.ErrConflict.
//
// Persistence:
//
//	Save writes a consistent snapshot in the shared db snapshot format
//	(see db.WriteSnapshot), Load replaces the whole state with a snapshot. Load must not
//	run concurrently with Get.
//
// Metrics:
//
//	Every instance keeps its own go-metrics registry (commit timer, conflict counter,
//	scan meter). The values are reported through GetInfo together with size estimates
//	and shard distribution statistics.
package maple
