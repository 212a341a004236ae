package maple

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	dbtesting "github.com/ValentinKolb/rtparam/lib/db/testing"
	"sync"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MapleDB(1 shard)", func() db.KVDB {
		return NewMapleDB(&DBOptions{NumShards: 1})
	})
}

// TestGetDuringLoad reads while snapshots are loaded. Run with -race.
func TestGetDuringLoad(t *testing.T) {
	src := NewMapleDB(&DBOptions{NumShards: 4})
	batch := &db.Batch{}
	for i := 0; i < 100; i++ {
		batch.Writes = append(batch.Writes, db.Write{Key: fmt.Sprintf("k%d", i), Value: []byte("v")})
	}
	if err := src.Commit(batch, 1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	var snapshot bytes.Buffer
	if err := src.Save(&snapshot); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	dst := NewMapleDB(&DBOptions{NumShards: 4})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			// a key is either missing (before the first load) or complete
			if value, version, ok := dst.Get(fmt.Sprintf("k%d", i%100)); ok && (string(value) != "v" || version != 1) {
				t.Errorf("inconsistent read: value=%q version=%d", value, version)
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		if err := dst.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
			t.Errorf("load failed: %v", err)
			break
		}
	}
	close(done)
	wg.Wait()

	if _, _, ok := dst.Get("k42"); !ok {
		t.Errorf("expected k42 after load")
	}
}

func Benchmark(t *testing.B) {
	dbtesting.RunKVDBBenchmarks(t, "MapleDB", func() db.KVDB {
		return NewMapleDB(nil)
	})
}
