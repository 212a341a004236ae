// Package dstore implements the transactional store on a Dragonboat RAFT shard.
// It satisfies store.IStore, so the parameter store runs unchanged on a single
// local table or on a replicated one.
//
// Architecture:
//
//   - Store Client (store.go): Implements store.IStore and store.Backend. Transactions
//     run in the calling process through store.RunTransaction; only their final batch
//     is proposed to the shard.
//
//   - State Machine (statemachine.go): A Dragonboat IConcurrentStateMachine that owns
//     the db.KVDB instance. Update validates and applies one batch per raft entry,
//     Lookup answers queries.
//
//   - Replica (replica.go): Starts a NodeHost and the shard replica from a
//     common.ClusterConfig and waits for a leader.
//
// Write Path:
//
//  1. The transaction's reads are served by SyncRead (linearizable), every read
//     records the version of the key
//  2. The batch (read set, scan marker, writes) is serialized into an internal.Command
//     and proposed via SyncPropose
//  3. Once committed, every replica validates the batch against its table and applies
//     it with the raft log index as the new version. Since all replicas apply the same
//     log, all of them reach the same decision
//  4. A rejected batch comes back as RetCConflict and the runner re-executes the
//     transaction
//
// Read Path:
//
//   - Transactional reads use SyncRead, so a transaction never starts from a state
//     older than its last commit.
//
//   - Dirty reads (IStore.Get, IStore.Scan) and GetDBInfo use StaleRead and may lag
//     behind the leader.
//
// Busy and not-ready shards are retried a few times with a short pause before the
// error is returned.
//
// Snapshots:
//
//	PrepareSnapshot captures the table in the shared db snapshot format while
//	Dragonboat holds back updates. SaveSnapshot writes the captured bytes,
//	RecoverFromSnapshot loads them into the engine.
package dstore
