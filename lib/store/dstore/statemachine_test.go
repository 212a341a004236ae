package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/ValentinKolb/rtparam/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateMachine() sm.IConcurrentStateMachine {
	return CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })(1, 1)
}

func commitEntry(index uint64, batch *db.Batch) sm.Entry {
	cmd := internal.NewCommitCommand(batch)
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func TestStateMachineUpdate(t *testing.T) {
	fsm := newStateMachine()
	defer fsm.Close()

	entries, err := fsm.Update([]sm.Entry{
		commitEntry(1, &db.Batch{
			Reads:  []db.Read{{Key: "k", Version: 0}},
			Writes: []db.Write{{Key: "k", Value: []byte("first")}},
		}),
		// built on the same absent read, must lose
		commitEntry(2, &db.Batch{
			Reads:  []db.Read{{Key: "k", Version: 0}},
			Writes: []db.Write{{Key: "k", Value: []byte("second")}},
		}),
		{Index: 3, Cmd: []byte{}},
		{Index: 4, Cmd: []byte{0, 1, 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(store.RetCSuccess), entries[0].Result.Value)
	assert.Equal(t, uint64(store.RetCConflict), entries[1].Result.Value)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[2].Result.Value)
	assert.Equal(t, uint64(store.RetCInternalError), entries[3].Result.Value)

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "k"})
	require.NoError(t, err)
	qr := res.(internal.QueryResult)
	assert.True(t, qr.Ok)
	assert.Equal(t, []byte("first"), qr.Value)
	assert.Equal(t, uint64(1), qr.Version, "the raft index is the version")
}

func TestStateMachineLookup(t *testing.T) {
	fsm := newStateMachine()
	defer fsm.Close()

	_, err := fsm.Update([]sm.Entry{commitEntry(5, &db.Batch{Writes: []db.Write{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}})})
	require.NoError(t, err)

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTScan})
	require.NoError(t, err)
	scan := res.(internal.ScanResult)
	assert.Equal(t, uint64(5), scan.WriteIdx)
	assert.Len(t, scan.Records, 2)

	res, err = fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: "missing"})
	require.NoError(t, err)
	assert.False(t, res.(internal.QueryResult).Ok)

	res, err = fsm.Lookup(internal.Query{Type: internal.QueryTGetDBInfo})
	require.NoError(t, err)
	assert.Equal(t, 2, res.(db.DatabaseInfo).Entries)

	_, err = fsm.Lookup(internal.Query{Type: 99})
	assert.Error(t, err)

	_, err = fsm.Lookup("not a query")
	assert.Error(t, err)
}

func TestStateMachineSnapshot(t *testing.T) {
	fsm := newStateMachine()
	defer fsm.Close()

	_, err := fsm.Update([]sm.Entry{commitEntry(3, &db.Batch{Writes: []db.Write{{Key: "a", Value: []byte("1")}}})})
	require.NoError(t, err)

	ctx, err := fsm.PrepareSnapshot()
	require.NoError(t, err)

	// updates after PrepareSnapshot are not part of the snapshot
	_, err = fsm.Update([]sm.Entry{commitEntry(4, &db.Batch{Writes: []db.Write{{Key: "b", Value: []byte("2")}}})})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, fsm.SaveSnapshot(ctx, &buf, nil, nil))

	restored := newStateMachine()
	defer restored.Close()
	require.NoError(t, restored.RecoverFromSnapshot(&buf, nil, nil))

	res, err := restored.Lookup(internal.Query{Type: internal.QueryTScan})
	require.NoError(t, err)
	scan := res.(internal.ScanResult)
	assert.Equal(t, uint64(3), scan.WriteIdx)
	require.Len(t, scan.Records, 1)
	assert.Equal(t, "a", scan.Records[0].Key)

	// replaying the entry after the snapshot works on the restored machine
	entries, err := restored.Update([]sm.Entry{commitEntry(4, &db.Batch{Writes: []db.Write{{Key: "b", Value: []byte("2")}}})})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCSuccess), entries[0].Result.Value)
}
