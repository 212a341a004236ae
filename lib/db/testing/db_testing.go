package testing

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/rtparam/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Commit&Get", func(t *testing.T) {
			testCommitGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("StaleRead", func(t *testing.T) {
			testStaleRead(t, factory())
		})

		t.Run("AbsentRead", func(t *testing.T) {
			testAbsentRead(t, factory())
		})

		t.Run("StaleScan", func(t *testing.T) {
			testStaleScan(t, factory())
		})

		t.Run("ReadOnlyCommit", func(t *testing.T) {
			testReadOnlyCommit(t, factory())
		})

		t.Run("StaleWriteIndex", func(t *testing.T) {
			testStaleWriteIndex(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("ScanIsolation", func(t *testing.T) {
			testScanIsolation(t, factory())
		})

		t.Run("ConcurrentIncrements", func(t *testing.T) {
			testConcurrentIncrements(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadInvalid", func(t *testing.T) {
			testLoadInvalid(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// put commits a single unconditional write at the next write index
func put(t testing.TB, database db.KVDB, key string, value []byte) uint64 {
	idx := database.WriteIdx() + 1
	if err := database.Commit(&db.Batch{Writes: []db.Write{{Key: key, Value: value}}}, idx); err != nil {
		t.Fatalf("Commit(%s) failed: %v", key, err)
	}
	return idx
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCommitGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	idx1 := put(t, database, testKey, testValue1)

	result, version, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Commit", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}
	if version != idx1 {
		t.Errorf("Expected version %d, got %d", idx1, version)
	}

	idx2 := put(t, database, testKey, testValue2)

	result, version, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Commit", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}
	if version != idx2 {
		t.Errorf("Expected version %d, got %d", idx2, version)
	}
	if database.WriteIdx() != idx2 {
		t.Errorf("Expected write index %d, got %d", idx2, database.WriteIdx())
	}

	if _, _, exists = database.Get("nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	testKey := "delete-test-key"
	put(t, database, testKey, []byte("delete-test-value"))

	err := database.Commit(&db.Batch{Writes: []db.Write{{Key: testKey, Delete: true}}}, database.WriteIdx()+1)
	if err != nil {
		t.Fatalf("Delete commit failed: %v", err)
	}

	if _, _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	// deleting a missing key is not an error
	err = database.Commit(&db.Batch{Writes: []db.Write{{Key: "nonexistent-key", Delete: true}}}, database.WriteIdx()+1)
	if err != nil {
		t.Errorf("Deleting a nonexistent key should succeed, got %v", err)
	}
}

func testStaleRead(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	put(t, database, "a", []byte("1"))
	_, versionA, _ := database.Get("a")

	// someone else updates a
	put(t, database, "a", []byte("2"))

	// a batch built on the old version of a must fail and must not write b
	batch := &db.Batch{
		Reads: []db.Read{{Key: "a", Version: versionA}},
		Writes: []db.Write{
			{Key: "a", Value: []byte("3")},
			{Key: "b", Value: []byte("3")},
		},
	}
	err := database.Commit(batch, database.WriteIdx()+1)
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}

	if value, _, _ := database.Get("a"); string(value) != "2" {
		t.Errorf("Expected a=2 after failed commit, got %s", value)
	}
	if _, _, exists := database.Get("b"); exists {
		t.Errorf("Expected b to not exist after failed commit")
	}

	// with the current version the batch is accepted
	_, versionA, _ = database.Get("a")
	batch.Reads[0].Version = versionA
	if err := database.Commit(batch, database.WriteIdx()+1); err != nil {
		t.Fatalf("Expected commit with current read set to succeed, got %v", err)
	}
	if value, _, _ := database.Get("b"); string(value) != "3" {
		t.Errorf("Expected b=3, got %s", value)
	}
}

func testAbsentRead(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	// two writers observed the key as absent, only the first may create it
	batch1 := &db.Batch{Reads: []db.Read{{Key: "k", Version: 0}}, Writes: []db.Write{{Key: "k", Value: []byte("first")}}}
	batch2 := &db.Batch{Reads: []db.Read{{Key: "k", Version: 0}}, Writes: []db.Write{{Key: "k", Value: []byte("second")}}}

	if err := database.Commit(batch1, database.WriteIdx()+1); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	if err := database.Commit(batch2, database.WriteIdx()+1); !errors.Is(err, db.ErrConflict) {
		t.Fatalf("Expected ErrConflict for second commit, got %v", err)
	}
	if value, _, _ := database.Get("k"); string(value) != "first" {
		t.Errorf("Expected value first, got %s", value)
	}
}

func testStaleScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureScan)

	put(t, database, "x", []byte("1"))

	scanIdx := database.Scan(func(string, []byte, uint64) bool { return true })

	// an unrelated key is added after the scan
	put(t, database, "y", []byte("1"))

	batch := &db.Batch{Scanned: true, ScanIdx: scanIdx, Writes: []db.Write{{Key: "x", Delete: true}}}
	if err := database.Commit(batch, database.WriteIdx()+1); !errors.Is(err, db.ErrConflict) {
		t.Fatalf("Expected ErrConflict for stale scan, got %v", err)
	}

	batch.ScanIdx = database.Scan(func(string, []byte, uint64) bool { return true })
	if err := database.Commit(batch, database.WriteIdx()+1); err != nil {
		t.Fatalf("Expected commit with current scan to succeed, got %v", err)
	}
}

func testReadOnlyCommit(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	idx := put(t, database, "ro", []byte("v"))

	batch := &db.Batch{Reads: []db.Read{{Key: "ro", Version: idx}, {Key: "missing", Version: 0}}}
	if err := database.Commit(batch, idx+1); err != nil {
		t.Fatalf("Read only commit failed: %v", err)
	}
	if database.WriteIdx() != idx {
		t.Errorf("Read only commit must not advance the write index (expected %d, got %d)", idx, database.WriteIdx())
	}

	batch.Reads[0].Version = idx - 1
	if err := database.Commit(batch, idx+1); !errors.Is(err, db.ErrConflict) {
		t.Errorf("Expected ErrConflict for stale read only batch, got %v", err)
	}
}

func testStaleWriteIndex(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	idx := put(t, database, "k", []byte("v"))

	err := database.Commit(&db.Batch{Writes: []db.Write{{Key: "k", Value: []byte("old")}}}, idx)
	if err == nil {
		t.Fatalf("Expected an error for a reused write index")
	}
	if value, _, _ := database.Get("k"); string(value) != "v" {
		t.Errorf("Expected value v, got %s", value)
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureScan)

	numKeys := 200
	writes := make([]db.Write, numKeys)
	for i := 0; i < numKeys; i++ {
		writes[i] = db.Write{Key: fmt.Sprintf("scan-key-%d", i), Value: []byte(strconv.Itoa(i))}
	}
	if err := database.Commit(&db.Batch{Writes: writes}, 1); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	seen := make(map[string]string)
	idx := database.Scan(func(key string, value []byte, version uint64) bool {
		if version != 1 {
			t.Errorf("Expected version 1 for %s, got %d", key, version)
		}
		seen[key] = string(value)
		return true
	})

	if idx != 1 {
		t.Errorf("Expected scan index 1, got %d", idx)
	}
	if len(seen) != numKeys {
		t.Fatalf("Expected %d keys, got %d", numKeys, len(seen))
	}
	for i := 0; i < numKeys; i++ {
		if v := seen[fmt.Sprintf("scan-key-%d", i)]; v != strconv.Itoa(i) {
			t.Errorf("Expected value %d for scan-key-%d, got %s", i, i, v)
		}
	}

	// early stop
	count := 0
	database.Scan(func(string, []byte, uint64) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Expected scan to stop after 10 entries, got %d", count)
	}
}

func testScanIsolation(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureScan)

	// every batch writes the same value to a and b, a scan must never see them differ
	var (
		wg   sync.WaitGroup
		stop atomic.Bool
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			v := []byte(strconv.Itoa(i))
			err := database.Commit(&db.Batch{Writes: []db.Write{{Key: "a", Value: v}, {Key: "b", Value: v}}}, uint64(i))
			if err != nil {
				t.Errorf("Commit %d failed: %v", i, err)
				return
			}
		}
		stop.Store(true)
	}()

	for !stop.Load() {
		values := make(map[string]string)
		database.Scan(func(key string, value []byte, _ uint64) bool {
			values[key] = string(value)
			return true
		})
		if values["a"] != values["b"] {
			t.Fatalf("Scan observed a partially applied batch: a=%s b=%s", values["a"], values["b"])
		}
	}

	wg.Wait()
}

func testConcurrentIncrements(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	numWorkers := 8
	incrementsPerWorker := 50
	key := "counter"

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < incrementsPerWorker; i++ {
				for {
					value, version, _ := database.Get(key)
					n, _ := strconv.Atoi(string(value))
					batch := &db.Batch{
						Reads:  []db.Read{{Key: key, Version: version}},
						Writes: []db.Write{{Key: key, Value: []byte(strconv.Itoa(n + 1))}},
					}
					err := database.Commit(batch, database.WriteIdx()+1)
					if err == nil {
						break
					}
					if !errors.Is(err, db.ErrConflict) {
						t.Errorf("Unexpected commit error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	value, _, _ := database.Get(key)
	if expected := strconv.Itoa(numWorkers * incrementsPerWorker); string(value) != expected {
		t.Errorf("Expected counter %s, got %s (lost updates)", expected, value)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		put(t, database, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}
	// removed entries must not come back
	for i := 0; i < numEntries; i += 10 {
		err := database.Commit(&db.Batch{Writes: []db.Write{{Key: fmt.Sprintf("key-%d", i), Delete: true}}}, database.WriteIdx()+1)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if database2.WriteIdx() != database.WriteIdx() {
		t.Errorf("Expected write index %d after load, got %d", database.WriteIdx(), database2.WriteIdx())
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("key-%d", i)
		expected, expectedVersion, expectedExists := database.Get(key)
		value, version, exists := database2.Get(key)

		if exists != expectedExists {
			t.Errorf("Key %s: expected exists=%v, got %v", key, expectedExists, exists)
			continue
		}
		if !bytes.Equal(value, expected) || version != expectedVersion {
			t.Errorf("Key %s: expected %s@%d, got %s@%d", key, expected, expectedVersion, value, version)
		}
	}

	// the loaded database keeps working
	put(t, database2, "after-load", []byte("v"))
	if _, _, ok := database2.Get("after-load"); !ok {
		t.Errorf("Expected write after load to succeed")
	}
}

func testLoadInvalid(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet|db.FeatureLoad)

	put(t, database, "keep", []byte("me"))

	if err := database.Load(bytes.NewReader([]byte("definitely not a snapshot"))); err == nil {
		t.Fatalf("Expected Load of garbage to fail")
	}

	if value, _, ok := database.Get("keep"); !ok || string(value) != "me" {
		t.Errorf("Failed load must not modify the database, got %s (exists=%v)", value, ok)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureCommit|db.FeatureGet)

	// empty key
	put(t, database, "", []byte("empty-key-value"))
	if value, _, ok := database.Get(""); !ok || string(value) != "empty-key-value" {
		t.Errorf("Empty key: expected empty-key-value, got %s (exists=%v)", value, ok)
	}

	// empty value
	put(t, database, "empty-value", []byte{})
	if value, _, ok := database.Get("empty-value"); !ok || len(value) != 0 {
		t.Errorf("Empty value: expected existing empty value, got %v (exists=%v)", value, ok)
	}

	// binary key with separators
	binKey := string([]byte{'s', 0, 1, 0xff, '/'})
	put(t, database, binKey, []byte{0, 1, 2, 254, 255})
	if value, _, ok := database.Get(binKey); !ok || !bytes.Equal(value, []byte{0, 1, 2, 254, 255}) {
		t.Errorf("Binary key: unexpected value %v (exists=%v)", value, ok)
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1024*1024)
	put(t, database, "large", large)
	if value, _, ok := database.Get("large"); !ok || !bytes.Equal(value, large) {
		t.Errorf("Large value was not stored correctly (exists=%v, len=%d)", ok, len(value))
	}

	// a key written twice in one batch keeps the last write
	err := database.Commit(&db.Batch{Writes: []db.Write{
		{Key: "twice", Value: []byte("1")},
		{Key: "twice", Value: []byte("2")},
	}}, database.WriteIdx()+1)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if value, _, _ := database.Get("twice"); string(value) != "2" {
		t.Errorf("Expected last write to win, got %s", value)
	}
}
