package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplSQLite Implementation = "sqlite"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet    Feature = 1 << iota // Support for dirty Get operations
	FeatureScan                       // Support for consistent full table scans
	FeatureCommit                     // Support for validated batch commits
	FeatureSave                       // Support for Save operations
	FeatureLoad                       // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureScan:
		return "Scan"
	case FeatureCommit:
		return "Commit"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrConflict is returned by Commit if a batch was built on reads that are no longer current.
// The batch has not been applied, the caller may rebuild and retry it.
var ErrConflict = errors.New("commit conflict: read set is stale")

// --------------------------------------------------------------------------
// Commit Batches
// --------------------------------------------------------------------------

// Read records the version of a key observed by a transaction.
// Version 0 means the key was absent.
type Read struct {
	Key     string
	Version uint64
}

// Write is a buffered mutation. Delete writes ignore Value.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batch is the unit that is validated and applied atomically by KVDB.Commit.
//
// Every Read must still carry the current version of its key. If Scanned is set the
// transaction observed the whole table at ScanIdx and the batch is only valid if no
// other batch has been applied since.
type Batch struct {
	Reads   []Read
	Scanned bool
	ScanIdx uint64
	Writes  []Write
}

// ReadOnly returns true if the batch does not mutate anything.
func (b *Batch) ReadOnly() bool {
	return len(b.Writes) == 0
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the interface for the versioned table engines used by the stores.
// Every key carries the write index of the batch that last wrote it (its version).
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Commit validates the batch and applies all of its writes atomically.
	// The writeIndex is used as the new version of every written key and must be greater
	// than every index used before. If any read version is stale, or the batch scanned the
	// table and another batch was applied afterward, ErrConflict is returned and nothing is
	// written. Read only batches are validated but do not advance the write index.
	Commit(batch *Batch, writeIndex uint64) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value and version for an exact key without any isolation.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, version uint64, loaded bool)

	// Scan calls fn for every entry until fn returns false.
	// The scan never observes a partially applied batch. It returns the write index
	// the scan was consistent with.
	Scan(fn func(key string, value []byte, version uint64) bool) (writeIndex uint64)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// WriteIdx returns the index of the last applied batch.
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}

// FallibleKVDB is implemented by engines whose reads can fail (e.g. disk backed
// engines). Stores read through Get and Scan below, so such failures reach the
// caller instead of looking like an absent key or a short table.
type FallibleKVDB interface {
	KVDB

	// TryGet is Get with the engine error
	TryGet(key string) (value []byte, version uint64, loaded bool, err error)

	// TryScan is Scan with the engine error. fn is not called if reading the table fails.
	TryScan(fn func(key string, value []byte, version uint64) bool) (writeIndex uint64, err error)
}

// Get reads key from database, reporting engine errors if the engine can fail
func Get(database KVDB, key string) ([]byte, uint64, bool, error) {
	if f, ok := database.(FallibleKVDB); ok {
		return f.TryGet(key)
	}
	value, version, loaded := database.Get(key)
	return value, version, loaded, nil
}

// Scan scans database, reporting engine errors if the engine can fail
func Scan(database KVDB, fn func(key string, value []byte, version uint64) bool) (uint64, error) {
	if f, ok := database.(FallibleKVDB); ok {
		return f.TryScan(fn)
	}
	return database.Scan(fn), nil
}
