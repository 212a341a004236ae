// Package lstore implements a local, single-node transactional store based on the
// store.IStore interface. It is a thin wrapper around any db.KVDB implementation
// that supplies the write indices and runs transactions with store.RunTransaction.
//
// Implementation Details:
//
//   - Write Index Management: The store keeps an atomic counter of the last used
//     write index. Allocating the next index and committing the batch happen under
//     one mutex, so the engine always receives strictly increasing indices. When the
//     engine was loaded from a snapshot the counter continues from the engine's index.
//
//   - Feature Detection: Before touching the engine the store checks if the underlying
//     db.KVDB implementation supports the operation. Unsupported operations return
//     RetCUnsupportedOperation instead of failing silently.
//
//   - Composition: The engine is injected through a store.DBFactory, so the same store
//     runs on the in-memory maple engine and on the sqlite engine.
//
// Durability depends on the engine: maple keeps everything in memory, sqlite persists
// every committed batch.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory, nil)
//
//	err := s.Transaction(func(tx store.Txn) error {
//		v, ok, err := tx.Get("counter")
//		...
//		tx.Put("counter", next)
//		return nil
//	})
//
// For replicated deployments use the dstore package, which implements the same
// interface on top of a dragonboat raft shard.
package lstore
