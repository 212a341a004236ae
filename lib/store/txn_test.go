package store_test

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/ValentinKolb/rtparam/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts *store.TxnOptions) store.IStore {
	s := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeBackend counts calls and fails on demand
type fakeBackend struct {
	commits   int
	commitErr error
	getErr    error
}

func (f *fakeBackend) TxnGet(string) ([]byte, uint64, bool, error) {
	return nil, 0, false, f.getErr
}

func (f *fakeBackend) TxnScan(func(string, []byte, uint64) bool) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) TxnCommit(*db.Batch) error {
	f.commits++
	return f.commitErr
}

func TestTransactionCommit(t *testing.T) {
	s := newStore(t, nil)

	err := s.Transaction(func(tx store.Txn) error {
		tx.Put("a", []byte("1"))
		tx.Put("b", []byte("2"))
		return nil
	})
	require.NoError(t, err)

	value, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), value)

	count := 0
	require.NoError(t, s.Scan(func(string, []byte) bool { count++; return true }))
	assert.Equal(t, 2, count)
}

func TestTransactionFnErrorDiscardsWrites(t *testing.T) {
	s := newStore(t, nil)
	errBoom := errors.New("boom")

	err := s.Transaction(func(tx store.Txn) error {
		tx.Put("a", []byte("1"))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok, "writes of a failed transaction must not be visible")
}

func TestTransactionReadYourWrites(t *testing.T) {
	s := newStore(t, nil)

	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		tx.Put("keep", []byte("old"))
		tx.Put("drop", []byte("x"))
		return nil
	}))

	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		tx.Put("keep", []byte("new"))
		tx.Delete("drop")
		tx.Put("added", []byte("y"))

		value, ok, err := tx.Get("keep")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("new"), value)

		_, ok, err = tx.Get("drop")
		require.NoError(t, err)
		assert.False(t, ok)

		seen := map[string]string{}
		require.NoError(t, tx.Scan(func(key string, value []byte) bool {
			seen[key] = string(value)
			return true
		}))
		assert.Equal(t, map[string]string{"keep": "new", "added": "y"}, seen)
		return nil
	}))
}

func TestTransactionConcurrentIncrements(t *testing.T) {
	s := newStore(t, &store.TxnOptions{Retries: 10000, Backoff: 50 * time.Microsecond})

	workers, increments := 8, 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				err := s.Transaction(func(tx store.Txn) error {
					value, _, err := tx.Get("counter")
					if err != nil {
						return err
					}
					n, _ := strconv.Atoi(string(value))
					tx.Put("counter", []byte(strconv.Itoa(n+1)))
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	value, _, err := s.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*increments), string(value))
}

func TestTransactionScanConflictRetries(t *testing.T) {
	s := newStore(t, nil)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, s.Transaction(func(tx store.Txn) error {
			tx.Put(key, []byte("v"))
			return nil
		}))
	}

	attempts := 0
	err := s.Transaction(func(tx store.Txn) error {
		attempts++
		var keys []string
		if err := tx.Scan(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		}); err != nil {
			return err
		}

		// a concurrent writer inserts a key after the first scan
		if attempts == 1 {
			require.NoError(t, s.Transaction(func(other store.Txn) error {
				other.Put("late", []byte("v"))
				return nil
			}))
		}

		for _, key := range keys {
			tx.Delete(key)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "the stale scan must be detected and re-executed once")

	count := 0
	require.NoError(t, s.Scan(func(string, []byte) bool { count++; return true }))
	assert.Equal(t, 0, count, "the late key must be deleted by the retried transaction")
}

func TestTransactionAbortAfterRetries(t *testing.T) {
	backend := &fakeBackend{commitErr: db.ErrConflict}

	attempts := 0
	err := store.RunTransaction(backend, &store.TxnOptions{Retries: 3}, func(tx store.Txn) error {
		attempts++
		tx.Put("k", []byte("v"))
		return nil
	})

	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, backend.commits)
}

func TestTransactionBackendFailure(t *testing.T) {
	backend := &fakeBackend{commitErr: errors.New("raft timeout")}
	err := store.RunTransaction(backend, nil, func(tx store.Txn) error {
		tx.Put("k", []byte("v"))
		return nil
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.Equal(t, 1, backend.commits, "non conflict failures are not retried")

	backend = &fakeBackend{getErr: errors.New("read failed")}
	err = store.RunTransaction(backend, nil, func(tx store.Txn) error {
		_, _, err := tx.Get("k")
		return err
	})
	assert.ErrorIs(t, err, store.ErrTransactionAborted)
	assert.Equal(t, 0, backend.commits)
}

func TestTransactionOutcomeUnknown(t *testing.T) {
	backend := &fakeBackend{commitErr: store.NewError(store.RetCOutcomeUnknown, "proposal timed out")}
	err := store.RunTransaction(backend, nil, func(tx store.Txn) error {
		tx.Put("k", []byte("v"))
		return nil
	})
	assert.ErrorIs(t, err, store.ErrOutcomeUnknown)
	assert.NotErrorIs(t, err, store.ErrTransactionAborted, "the batch may have been applied")
	assert.Equal(t, 1, backend.commits, "an unknown outcome is not retried")
}

func TestTransactionReadOnlyShortcut(t *testing.T) {
	backend := &fakeBackend{}

	require.NoError(t, store.RunTransaction(backend, nil, func(tx store.Txn) error {
		_, _, err := tx.Get("a")
		return err
	}))
	assert.Equal(t, 0, backend.commits, "a single point read needs no commit")

	require.NoError(t, store.RunTransaction(backend, nil, func(tx store.Txn) error {
		if _, _, err := tx.Get("a"); err != nil {
			return err
		}
		_, _, err := tx.Get("b")
		return err
	}))
	assert.Equal(t, 1, backend.commits, "multiple reads are validated together")
}

func TestErrorCodes(t *testing.T) {
	err := store.NewError(store.RetCScopeNotFound, "vhost 'x' not found")

	assert.ErrorIs(t, err, store.ErrScopeNotFound)
	assert.NotErrorIs(t, err, store.ErrTransactionAborted)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), store.ErrScopeNotFound)
	assert.Contains(t, err.Error(), "ScopeNotFound")
	assert.Equal(t, "Unknown", store.RetCode(99).String())
}
