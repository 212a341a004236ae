package dstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rtparam/lib/common"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/lni/dragonboat/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddress returns a localhost address with a currently unused port
func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

// startTestReplica starts a single node shard in a temporary directory
func startTestReplica(t *testing.T) *Replica {
	if testing.Short() {
		t.Skip("skipping raft test in short mode")
	}

	cfg := common.DefaultClusterConfig(t.TempDir())
	cfg.ClusterMembers = map[uint64]string{1: freeAddress(t)}
	cfg.RTTMillisecond = 10
	cfg.TimeoutSecond = 10

	r, err := StartReplica(cfg, func() db.KVDB { return maple.NewMapleDB(nil) })
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func TestDistributedStoreTransaction(t *testing.T) {
	r := startTestReplica(t)
	s := r.Store

	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		tx.Put("a", []byte("1"))
		tx.Put("b", []byte("2"))
		return nil
	}))

	// a transactional read sees the commit immediately
	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		value, ok, err := tx.Get("a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), value)
		tx.Delete("b")
		return nil
	}))

	seen := map[string]string{}
	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		return tx.Scan(func(key string, value []byte) bool {
			seen[key] = string(value)
			return true
		})
	}))
	assert.Equal(t, map[string]string{"a": "1"}, seen)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplMaple, info.DbType)
}

func TestDistributedStoreConcurrentIncrements(t *testing.T) {
	r := startTestReplica(t)
	s := NewDistributedStore(r.NodeHost, r.ShardID, 10*time.Second)
	s.(*storeImpl).opts = &store.TxnOptions{Retries: 1000, Backoff: time.Millisecond}

	workers, increments := 4, 10
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

	var value []byte
	require.NoError(t, s.Transaction(func(tx store.Txn) error {
		var err error
		value, _, err = tx.Get("counter")
		return err
	}))
	assert.Equal(t, fmt.Sprint(workers*increments), string(value))
}

func TestOutcomeUnknown(t *testing.T) {
	for _, err := range []error{dragonboat.ErrTimeout, dragonboat.ErrAborted, dragonboat.ErrCanceled, context.DeadlineExceeded, fmt.Errorf("propose: %w", dragonboat.ErrTimeout)} {
		assert.True(t, outcomeUnknown(err), err.Error())
	}
	for _, err := range []error{nil, dragonboat.ErrSystemBusy, dragonboat.ErrShardNotReady, errors.New("other")} {
		assert.False(t, outcomeUnknown(err), fmt.Sprint(err))
	}
}
