package lstore

import (
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/store"
	"sync"
	"sync/atomic"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
	opts  *store.TxnOptions

	// index allocation and commit happen together, so indices reach the db in order
	commitMu sync.Mutex
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// opts may be nil for the default retry behavior.
func NewLocalStore(factory store.DBFactory, opts *store.TxnOptions) store.IStore {
	if opts == nil {
		opts = store.DefaultTxnOptions()
	}
	s := &storeImpl{
		db:   factory(),
		opts: opts,
	}
	s.index.Store(s.db.WriteIdx())
	return s
}

// nextIndex returns the write index for the next commit.
// The db may have been loaded from a snapshot with a higher index than the counter.
//
// Thread-safety: The caller must hold commitMu.
func (s *storeImpl) nextIndex() uint64 {
	return max(s.index.Load(), s.db.WriteIdx()) + 1
}

// --------------------------------------------------------------------------
// Backend Methods (used by store.RunTransaction)
// --------------------------------------------------------------------------

func (s *storeImpl) TxnGet(key string) ([]byte, uint64, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, 0, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	value, version, ok, err := db.Get(s.db, key)
	if err != nil {
		return nil, 0, false, store.NewError(store.RetCInternalError, err.Error())
	}
	return value, version, ok, nil
}

func (s *storeImpl) TxnScan(fn func(key string, value []byte, version uint64) bool) (uint64, error) {
	if !s.db.SupportsFeature(db.FeatureScan) {
		return 0, store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
	}
	idx, err := db.Scan(s.db, fn)
	if err != nil {
		return 0, store.NewError(store.RetCInternalError, err.Error())
	}
	return idx, nil
}

func (s *storeImpl) TxnCommit(batch *db.Batch) error {
	if !s.db.SupportsFeature(db.FeatureCommit) {
		return store.NewError(store.RetCUnsupportedOperation, "Commit operation is not supported")
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	idx := s.nextIndex()
	if err := s.db.Commit(batch, idx); err != nil {
		return err
	}
	if !batch.ReadOnly() {
		s.index.Store(idx)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Transaction(fn func(tx store.Txn) error) error {
	return store.RunTransaction(s, s.opts, fn)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	value, _, ok, err := s.TxnGet(key)
	return value, ok, err
}

func (s *storeImpl) Scan(fn func(key string, value []byte) bool) error {
	_, err := s.TxnScan(func(key string, value []byte, _ uint64) bool {
		return fn(key, value)
	})
	return err
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}
