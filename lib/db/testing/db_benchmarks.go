package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Commit", func(b *testing.B) {
		benchmarkCommit(b, factory())
	})

	b.Run("CommitExisting", func(b *testing.B) {
		benchmarkCommitExisting(b, factory())
	})

	b.Run("CommitLargeValue", func(b *testing.B) {
		benchmarkCommitLargeValue(b, factory())
	})

	b.Run("CommitValidated", func(b *testing.B) {
		benchmarkCommitValidated(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Get(not)", func(b *testing.B) {
		benchmarkGetNot(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// sequencer hands out write indices for concurrent benchmark commits.
// Allocation and commit happen under one lock, so indices reach the database in order.
type sequencer struct {
	mu       sync.Mutex
	database db.KVDB
}

func (s *sequencer) commit(batch *db.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database.Commit(batch, s.database.WriteIdx()+1)
}

func fill(b *testing.B, database db.KVDB, prefix string, numKeys int) []string {
	keys := make([]string, numKeys)
	writes := make([]db.Write, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
		writes[i] = db.Write{Key: keys[i], Value: []byte(fmt.Sprintf("test-value-%d", i))}
	}
	if err := database.Commit(&db.Batch{Writes: writes}, database.WriteIdx()+1); err != nil {
		b.Fatalf("failed to prepare data: %v", err)
	}
	return keys
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for blind single key commits
func benchmarkCommit(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit)

	seq := &sequencer{database: database}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%p-%d", pb, counter)
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_ = seq.commit(&db.Batch{Writes: []db.Write{{Key: key, Value: value}}})
			counter++
		}
	})
}

// Benchmark for commits that overwrite existing keys
func benchmarkCommitExisting(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit)

	numKeys := 10000
	keys := fill(b, database, "test-key", numKeys)
	seq := &sequencer{database: database}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			_ = seq.commit(&db.Batch{Writes: []db.Write{{Key: keys[counter%numKeys], Value: value}}})
			counter++
		}
	})
}

// Benchmark for commits with large values
func benchmarkCommitLargeValue(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit)

	largeValue := make([]byte, 1*1024*1024) // 1MB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("test-key-%d", i%100)
		_ = database.Commit(&db.Batch{Writes: []db.Write{{Key: key, Value: largeValue}}}, database.WriteIdx()+1)
	}
}

// Benchmark for read-modify-write commits that carry a read set
func benchmarkCommitValidated(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit|db.FeatureGet)

	numKeys := 10000
	keys := fill(b, database, "test-key", numKeys)
	seq := &sequencer{database: database}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := keys[counter%numKeys]
			_, version, _ := database.Get(key)
			_ = seq.commit(&db.Batch{
				Reads:  []db.Read{{Key: key, Version: version}},
				Writes: []db.Write{{Key: key, Value: []byte("updated")}},
			})
			counter++
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit|db.FeatureGet)

	numKeys := 10000
	keys := fill(b, database, "test-key", numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(keys[counter%numKeys])
			counter++
		}
	})
}

// Parallel benchmarking for Get operation (with key miss)
func benchmarkGetNot(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureGet)
	const key = "test-key"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Get(key)
		}
	})
}

// Benchmark for full table scans
func benchmarkScan(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit|db.FeatureScan)

	fill(b, database, "test-key", 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Scan(func(string, []byte, uint64) bool { return true })
	}
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as they typically
// block the entire database
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit|db.FeatureSave|db.FeatureLoad)

	fill(b, database, "test-key", 10000)

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			database.Save(&buf)
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		defer loadDB.Close()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns: 70% Get, 20% Commit, 10% Delete
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureCommit|db.FeatureGet)

	numKeys := 10000
	keys := fill(b, database, "test-key", numKeys)
	seq := &sequencer{database: database}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			key := keys[rnd.Intn(numKeys)]

			switch r := rnd.Float32(); {
			case r < .7:
				database.Get(key)
			case r < .9:
				value := []byte(fmt.Sprintf("mixed-value-%d", counter))
				_ = seq.commit(&db.Batch{Writes: []db.Write{{Key: key, Value: value}}})
			default:
				_ = seq.commit(&db.Batch{Writes: []db.Write{{Key: key, Delete: true}}})
			}

			counter++
		}
	})
}
