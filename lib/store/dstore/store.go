package dstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/ValentinKolb/rtparam/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4/logger"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("dstore")
)

// storeImpl is the raft replicated implementation of store.IStore.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	opts    *store.TxnOptions
}

// NewDistributedStore creates a new distributed store instance on an already started shard.
// Commits go through the raft log, transactional reads use linearizable reads.
//
// A proposal that times out may still be committed later. Such commits fail with an
// error matching store.ErrOutcomeUnknown instead of store.ErrTransactionAborted, the
// caller has to read the affected keys to learn the outcome.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
		opts:    store.DefaultTxnOptions(),
	}
}

// retryable reports whether a dragonboat error is transient
func retryable(err error) bool {
	return errors.Is(err, dragonboat.ErrSystemBusy) || errors.Is(err, dragonboat.ErrShardNotReady)
}

// outcomeUnknown reports whether a proposal failed after it may have entered the raft log
func outcomeUnknown(err error) bool {
	return errors.Is(err, dragonboat.ErrTimeout) || errors.Is(err, dragonboat.ErrAborted) || errors.Is(err, dragonboat.ErrCanceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a serialized Command via SyncPropose.
// A batch rejected by validation yields db.ErrConflict.
func (s *storeImpl) write(cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if retryable(err) {
			log.Infof("SyncPropose: shard busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if outcomeUnknown(err) {
			return store.NewError(store.RetCOutcomeUnknown, err.Error())
		}
		if err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
		switch store.RetCode(res.Value) {
		case store.RetCSuccess:
			return nil
		case store.RetCConflict:
			return db.ErrConflict
		default:
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
	}
	return store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a busy shard, the function retries up to 5 times.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		if retryable(err) {
			log.Infof("%s read: shard busy, retrying (%d/%d)...", q.Type, i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Backend Methods (used by store.RunTransaction)
// --------------------------------------------------------------------------

func (s *storeImpl) TxnGet(key string) ([]byte, uint64, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return nil, 0, false, err
	}
	return res.Value, res.Version, res.Ok, nil
}

func (s *storeImpl) TxnScan(fn func(key string, value []byte, version uint64) bool) (uint64, error) {
	return s.scan(fn, false)
}

func (s *storeImpl) TxnCommit(batch *db.Batch) error {
	return s.write(internal.NewCommitCommand(batch))
}

func (s *storeImpl) scan(fn func(key string, value []byte, version uint64) bool, stale bool) (uint64, error) {
	res, err := read[internal.ScanResult](s, internal.Query{Type: internal.QueryTScan}, stale)
	if err != nil {
		return 0, err
	}
	for _, rec := range res.Records {
		if !fn(rec.Key, rec.Value, rec.Version) {
			break
		}
	}
	return res.WriteIdx, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Transaction(fn func(tx store.Txn) error) error {
	return store.RunTransaction(s, s.opts, fn)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, true) // dirty read, the local replica may lag behind
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Scan(fn func(key string, value []byte) bool) error {
	_, err := s.scan(func(key string, value []byte, _ uint64) bool {
		return fn(key, value)
	}, true)
	return err
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// Close is a no-op, the NodeHost is owned by the caller (see Replica.Stop)
func (s *storeImpl) Close() error {
	return nil
}
