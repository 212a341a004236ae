package maple

import (
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/rtparam/lib/db/util"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a versioned in-memory table with sharded data
type mapleImpl struct {
	numShards int                           // Number of shards
	table     atomic.Pointer[internal.Table] // Shards and hash seed, replaced as a whole by Load
	currIndex atomic.Uint64                  // Index of the last applied batch

	// Commits hold the write side, scans and saves the read side.
	// Point reads (Get) never take this lock.
	commitMu sync.RWMutex

	// engine metrics (reported by GetInfo)
	registry    gometrics.Registry
	commitTimer gometrics.Timer
	conflicts   gometrics.Counter
	scans       gometrics.Meter
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	registry := gometrics.NewRegistry()

	newDB := &mapleImpl{
		numShards:   opts.NumShards,
		registry:    registry,
		commitTimer: gometrics.GetOrRegisterTimer("commit", registry),
		conflicts:   gometrics.GetOrRegisterCounter("conflicts", registry),
		scans:       gometrics.GetOrRegisterMeter("scans", registry),
	}
	newDB.table.Store(internal.NewTable(opts.NumShards))
	newDB.currIndex.Store(0)

	return newDB
}

// shardFor returns the shard responsible for a key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return maple.table.Load().ShardFor(key)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Commit validates the batch against the current state and applies all writes
// with writeIndex as their new version.
//
// Thread-safety: Commits are serialized. Concurrent Get calls see every written
// entry either before or after the commit, never partially written.
func (maple *mapleImpl) Commit(batch *db.Batch, writeIndex uint64) error {
	start := time.Now()
	defer maple.commitTimer.UpdateSince(start)

	maple.commitMu.Lock()
	defer maple.commitMu.Unlock()

	if !maple.validate(batch) {
		maple.conflicts.Inc(1)
		return db.ErrConflict
	}

	// validated read only batches are done here
	if batch.ReadOnly() {
		return nil
	}

	if writeIndex <= maple.currIndex.Load() {
		return fmt.Errorf("stale write index %d (current %d)", writeIndex, maple.currIndex.Load())
	}

	for _, w := range batch.Writes {
		shard := maple.shardFor(w.Key)

		if w.Delete {
			shard.Data.Delete(w.Key)
			continue
		}

		// Copy value to prevent memory corruption
		valueCopy := make([]byte, len(w.Value))
		copy(valueCopy, w.Value)

		shard.Data.Store(w.Key, internal.Entry{
			Value: valueCopy,
			Index: writeIndex,
		})
	}

	maple.currIndex.Store(writeIndex)
	return nil
}

// validate checks that every read of the batch is still current.
// The caller must hold the commit lock.
func (maple *mapleImpl) validate(batch *db.Batch) bool {
	if batch.Scanned && batch.ScanIdx != maple.currIndex.Load() {
		return false
	}

	for _, r := range batch.Reads {
		var current uint64
		if e, ok := maple.shardFor(r.Key).Data.Load(r.Key); ok {
			current = e.Index
		}
		if current != r.Version {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value and its version for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, uint64, bool) {
	e, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, 0, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, e.Index, true
}

// Scan calls fn with a copy of every entry.
// fn must not call Commit or Load.
//
// Thread-safety: Scans run concurrently with each other and with Get, but not with commits.
func (maple *mapleImpl) Scan(fn func(key string, value []byte, version uint64) bool) uint64 {
	maple.commitMu.RLock()
	defer maple.commitMu.RUnlock()

	maple.scans.Mark(1)

	for _, shard := range maple.table.Load().Shards {
		cont := true
		shard.Data.Range(func(key string, e internal.Entry) bool {
			data := make([]byte, len(e.Value))
			copy(data, e.Value)
			cont = fn(key, data, e.Index)
			return cont
		})
		if !cont {
			break
		}
	}

	return maple.currIndex.Load()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// The snapshot is a consistent cut: no batch is applied while the entries are collected.
//
// Thread-safety: This function allows concurrent operations with all other functions except Load.
func (maple *mapleImpl) Save(w io.Writer) error {
	var records []db.Record
	writeIdx := maple.Scan(func(key string, value []byte, version uint64) bool {
		records = append(records, db.Record{Key: key, Value: value, Version: version})
		return true
	})
	return db.WriteSnapshot(w, writeIdx, records)
}

// Load replaces the database state with the snapshot from the reader
//
// Thread-safety: Commits and scans are blocked during loading.
func (maple *mapleImpl) Load(r io.Reader) error {
	maple.commitMu.Lock()
	defer maple.commitMu.Unlock()

	// load into fresh shards so a failed load leaves the current state untouched
	table := internal.NewTable(maple.numShards)

	writeIdx, err := db.ReadSnapshot(r, func(rec db.Record) error {
		table.ShardFor(rec.Key).Data.Store(rec.Key, internal.Entry{
			Value: rec.Value,
			Index: rec.Version,
		})
		return nil
	})
	if err != nil {
		return err
	}

	// point reads do not take commitMu, they pick up the new table atomically
	maple.table.Store(table)
	maple.currIndex.Store(writeIdx)
	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.commitMu.RLock()
	defer maple.commitMu.RUnlock()

	// create a size histogram for the info
	shards := maple.table.Load().Shards
	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	wg := sync.WaitGroup{}
	wg.Add(len(shards))

	mu := sync.Mutex{}
	entries := 0
	shardSizes := make([]float64, len(shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count := 0
			s.Data.Range(func(key string, entry internal.Entry) bool {
				histogram.AddSample(len(key) + len(entry.Value))

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()
			size := s.Data.Size()
			entries += size
			shardSizes[i] = float64(size)
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	// 8 bytes overhead for the version of every entry
	sizeBytes := histogram.EstimateBytes(entries, 8)

	// Metadata for this specific database implementation
	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Commits           int64                  `json:"commits"`
		CommitMeanMs      float64                `json:"commit_mean_ms"`
		CommitP99Ms       float64                `json:"commit_p99_ms"`
		Conflicts         int64                  `json:"conflicts"`
		Scans             int64                  `json:"scans"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Commits:           maple.commitTimer.Count(),
		CommitMeanMs:      maple.commitTimer.Mean() / float64(time.Millisecond),
		CommitP99Ms:       maple.commitTimer.Percentile(0.99) / float64(time.Millisecond),
		Conflicts:         maple.conflicts.Count(),
		Scans:             maple.scans.Count(),
		Info:              "SizeBytes is an estimate based on sampling.",
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		Entries:           entries,
		DbType:            db.ImplMaple,
		SupportedFeatures: []db.Feature{db.FeatureGet, db.FeatureScan, db.FeatureCommit, db.FeatureSave, db.FeatureLoad},
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeatureScan |
		db.FeatureCommit |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// WriteIdx returns the index of the last applied batch
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}

// Close stops the metric tickers
func (maple *mapleImpl) Close() error {
	maple.registry.UnregisterAll()
	return nil
}
