package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"math/rand"
	"sort"
	"time"
)

var txnLog = logger.GetLogger("txn")

// process wide transaction metrics (exposed via metrics.WritePrometheus)
var (
	txnCommitted = metrics.GetOrCreateCounter("rtparam_txn_committed_total")
	txnConflicts = metrics.GetOrCreateCounter("rtparam_txn_conflicts_total")
	txnAborted   = metrics.GetOrCreateCounter("rtparam_txn_aborted_total")
	txnDuration  = metrics.GetOrCreateHistogram("rtparam_txn_duration_seconds")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// TxnOptions controls how often a conflicting transaction is re-executed
type TxnOptions struct {
	Retries int           // Re-executions after a conflict before giving up
	Backoff time.Duration // Upper bound of the random pause before the first retry, grows linearly
}

// DefaultTxnOptions returns the default transaction options
func DefaultTxnOptions() *TxnOptions {
	return &TxnOptions{
		Retries: 16,
		Backoff: 200 * time.Microsecond,
	}
}

// --------------------------------------------------------------------------
// Transaction Runner
// --------------------------------------------------------------------------

// RunTransaction executes fn against the backend with all-or-nothing semantics.
//
// Reads inside fn are recorded together with the version they observed, writes are
// buffered. When fn returns nil the buffered writes are committed as one batch that
// is only applied if none of the observed versions changed in the meantime. On a
// conflict fn is executed again from scratch with a fresh view. fn must therefore
// not have side effects besides the Txn calls.
//
// If fn returns an error nothing is committed and the error is returned unchanged.
// If the transaction still conflicts after opts.Retries re-executions, or the backend
// fails, an error matching ErrTransactionAborted is returned.
func RunTransaction(backend Backend, opts *TxnOptions, fn func(tx Txn) error) error {
	if opts == nil {
		opts = DefaultTxnOptions()
	}

	start := time.Now()
	defer txnDuration.UpdateDuration(start)

	for attempt := 0; ; attempt++ {
		tx := newTxn(backend)

		if err := fn(tx); err != nil {
			if tx.failed {
				txnAborted.Inc()
			}
			return err
		}

		batch := tx.batch()

		// a single point read is consistent on its own
		if batch.ReadOnly() && !batch.Scanned && len(batch.Reads) <= 1 {
			return nil
		}

		err := backend.TxnCommit(batch)
		if err == nil {
			txnCommitted.Inc()
			return nil
		}

		// the batch may still be applied later, never retry it
		if errors.Is(err, ErrOutcomeUnknown) {
			txnLog.Warningf("commit outcome unknown: %v", err)
			return err
		}

		if !errors.Is(err, db.ErrConflict) {
			txnAborted.Inc()
			txnLog.Errorf("commit failed: %v", err)
			return NewError(RetCTransactionAborted, fmt.Sprintf("commit failed: %v", err))
		}

		txnConflicts.Inc()
		if attempt >= opts.Retries {
			txnAborted.Inc()
			txnLog.Warningf("transaction aborted after %d conflicting attempts", attempt+1)
			return NewError(RetCTransactionAborted, fmt.Sprintf("conflict persisted after %d attempts", attempt+1))
		}

		txnLog.Debugf("transaction conflict on attempt %d, retrying", attempt+1)
		if opts.Backoff > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(opts.Backoff) * int64(attempt+1))))
		}
	}
}

// --------------------------------------------------------------------------
// Transaction attempt
// --------------------------------------------------------------------------

type readEntry struct {
	value   []byte
	version uint64
	loaded  bool
}

type writeEntry struct {
	value  []byte
	delete bool
}

// txnImpl is a single attempt of a transaction
type txnImpl struct {
	backend Backend
	reads   map[string]readEntry
	writes  map[string]writeEntry
	order   []string // write keys in first-write order

	scanned bool
	scanIdx uint64
	failed  bool // a backend call failed
}

func newTxn(backend Backend) *txnImpl {
	return &txnImpl{
		backend: backend,
		reads:   make(map[string]readEntry),
		writes:  make(map[string]writeEntry),
	}
}

func (t *txnImpl) Get(key string) ([]byte, bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return nil, false, nil
		}
		return clone(w.value), true, nil
	}

	if r, ok := t.reads[key]; ok {
		return clone(r.value), r.loaded, nil
	}

	value, version, loaded, err := t.backend.TxnGet(key)
	if err != nil {
		t.failed = true
		return nil, false, NewError(RetCTransactionAborted, fmt.Sprintf("read failed: %v", err))
	}

	t.reads[key] = readEntry{value: value, version: version, loaded: loaded}
	return clone(value), loaded, nil
}

func (t *txnImpl) Scan(fn func(key string, value []byte) bool) error {
	type entry struct {
		key   string
		value []byte
	}

	var entries []entry
	idx, err := t.backend.TxnScan(func(key string, value []byte, _ uint64) bool {
		if _, buffered := t.writes[key]; !buffered {
			entries = append(entries, entry{key, value})
		}
		return true
	})
	if err != nil {
		t.failed = true
		return NewError(RetCTransactionAborted, fmt.Sprintf("scan failed: %v", err))
	}

	// validation uses the first scan, a later scan that saw newer data makes the commit fail
	if !t.scanned {
		t.scanned = true
		t.scanIdx = idx
	}

	for _, key := range t.order {
		if w := t.writes[key]; !w.delete {
			entries = append(entries, entry{key, w.value})
		}
	}

	for _, e := range entries {
		if !fn(e.key, clone(e.value)) {
			break
		}
	}
	return nil
}

func (t *txnImpl) Put(key string, value []byte) {
	t.write(key, writeEntry{value: clone(value)})
}

func (t *txnImpl) Delete(key string) {
	t.write(key, writeEntry{delete: true})
}

func (t *txnImpl) write(key string, w writeEntry) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

// batch converts the attempt into the engine batch
func (t *txnImpl) batch() *db.Batch {
	batch := &db.Batch{
		Scanned: t.scanned,
		ScanIdx: t.scanIdx,
	}

	for key, r := range t.reads {
		batch.Reads = append(batch.Reads, db.Read{Key: key, Version: r.version})
	}
	// deterministic order keeps commands of equal transactions byte identical
	sort.Slice(batch.Reads, func(i, j int) bool { return batch.Reads[i].Key < batch.Reads[j].Key })

	for _, key := range t.order {
		w := t.writes[key]
		batch.Writes = append(batch.Writes, db.Write{Key: key, Value: w.value, Delete: w.delete})
	}
	return batch
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
