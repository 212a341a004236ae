package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var log = logger.GetLogger("sqlite")

const schema = `
	CREATE TABLE IF NOT EXISTS params (
		key TEXT PRIMARY KEY,
		value BLOB,
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO meta (name, value) VALUES ('write_idx', 0);
`

// --------------------------------------------------------------------------
// Core SQLite database structure
// --------------------------------------------------------------------------

// sqliteImpl implements the versioned table on top of an embedded SQLite database
type sqliteImpl struct {
	path      string
	db        *sql.DB
	currIndex atomic.Uint64 // cached copy of meta.write_idx

	// serializes commits and loads, the single connection serializes everything else
	commitMu sync.Mutex

	registry    gometrics.Registry
	commitTimer gometrics.Timer
	conflicts   gometrics.Counter
}

// DBOptions configures the database
type DBOptions struct {
	// Path of the database file. Empty means a private in-memory database.
	Path string
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewSQLiteDB opens (or creates) the database and its schema
var _ db.FallibleKVDB = (*sqliteImpl)(nil)

func NewSQLiteDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{}
	}

	dsn := ":memory:"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = opts.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection keeps the in-memory database alive and gives a total order of statements.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	var idx uint64
	if err := sqlDB.QueryRow(`SELECT value FROM meta WHERE name = 'write_idx'`).Scan(&idx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("reading write index: %w", err)
	}

	registry := gometrics.NewRegistry()
	s := &sqliteImpl{
		path:        opts.Path,
		db:          sqlDB,
		registry:    registry,
		commitTimer: gometrics.GetOrRegisterTimer("commit", registry),
		conflicts:   gometrics.GetOrRegisterCounter("conflicts", registry),
	}
	s.currIndex.Store(idx)

	log.Debugf("opened sqlite database %q at write index %d", dsn, idx)
	return s, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Commit validates and applies the batch inside one SQLite transaction
func (s *sqliteImpl) Commit(batch *db.Batch, writeIndex uint64) error {
	start := time.Now()
	defer s.commitTimer.UpdateSince(start)

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ok, err := s.validate(tx, batch)
	if err != nil {
		return err
	}
	if !ok {
		s.conflicts.Inc(1)
		return db.ErrConflict
	}

	if batch.ReadOnly() {
		return nil
	}

	if curr := s.currIndex.Load(); writeIndex <= curr {
		return fmt.Errorf("stale write index %d (current %d)", writeIndex, curr)
	}

	for _, w := range batch.Writes {
		if w.Delete {
			_, err = tx.Exec(`DELETE FROM params WHERE key = ?`, w.Key)
		} else {
			_, err = tx.Exec(
				`INSERT INTO params (key, value, version) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = excluded.version`,
				w.Key, w.Value, int64(writeIndex))
		}
		if err != nil {
			return fmt.Errorf("applying write: %w", err)
		}
	}

	if err := setWriteIdx(tx, writeIndex); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.currIndex.Store(writeIndex)
	return nil
}

// validate checks the read set and scan marker of the batch inside tx
func (s *sqliteImpl) validate(tx *sql.Tx, batch *db.Batch) (bool, error) {
	if batch.Scanned && batch.ScanIdx != s.currIndex.Load() {
		return false, nil
	}

	for _, r := range batch.Reads {
		var current int64
		err := tx.QueryRow(`SELECT version FROM params WHERE key = ?`, r.Key).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			current = 0
		} else if err != nil {
			return false, fmt.Errorf("validating read: %w", err)
		}
		if uint64(current) != r.Version {
			return false, nil
		}
	}
	return true, nil
}

func setWriteIdx(tx *sql.Tx, idx uint64) error {
	if _, err := tx.Exec(`UPDATE meta SET value = ? WHERE name = 'write_idx'`, int64(idx)); err != nil {
		return fmt.Errorf("updating write index: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get reads a single row. Errors are logged and reported as a missing key, use
// TryGet (or db.Get) to receive them.
func (s *sqliteImpl) Get(key string) ([]byte, uint64, bool) {
	value, version, ok, err := s.TryGet(key)
	if err != nil {
		log.Errorf("get %q failed: %v", key, err)
	}
	return value, version, ok
}

func (s *sqliteImpl) TryGet(key string) ([]byte, uint64, bool, error) {
	var (
		value   []byte
		version int64
	)
	err := s.db.QueryRow(`SELECT value, version FROM params WHERE key = ?`, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, uint64(version), true, nil
}

// Scan logs errors and then reports an empty table, use TryScan (or db.Scan) to receive them.
func (s *sqliteImpl) Scan(fn func(key string, value []byte, version uint64) bool) uint64 {
	idx, err := s.TryScan(fn)
	if err != nil {
		log.Errorf("scan failed: %v", err)
	}
	return idx
}

// TryScan collects all rows first and calls fn afterwards, so fn may use the
// database itself. A failed read calls fn for no row at all.
func (s *sqliteImpl) TryScan(fn func(key string, value []byte, version uint64) bool) (uint64, error) {
	var records []db.Record
	idx, err := s.collect(func(rec db.Record) {
		records = append(records, rec)
	})
	if err != nil {
		return idx, fmt.Errorf("sqlite scan: %w", err)
	}

	for _, rec := range records {
		if !fn(rec.Key, rec.Value, rec.Version) {
			break
		}
	}
	return idx, nil
}

// collect reads all rows and the write index they are consistent with
func (s *sqliteImpl) collect(fn func(rec db.Record)) (uint64, error) {
	// commits hold the lock for their whole transaction, so the rows and the index match
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	rows, err := s.db.Query(`SELECT key, value, version FROM params ORDER BY key`)
	if err != nil {
		return s.currIndex.Load(), err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec     db.Record
			version int64
		)
		if err := rows.Scan(&rec.Key, &rec.Value, &version); err != nil {
			return s.currIndex.Load(), err
		}
		if rec.Value == nil {
			rec.Value = []byte{}
		}
		rec.Version = uint64(version)
		fn(rec)
	}
	return s.currIndex.Load(), rows.Err()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes all rows in the shared snapshot format
func (s *sqliteImpl) Save(w io.Writer) error {
	var records []db.Record
	idx, err := s.collect(func(rec db.Record) {
		records = append(records, rec)
	})
	if err != nil {
		return err
	}
	return db.WriteSnapshot(w, idx, records)
}

// Load replaces all rows with the snapshot. A failed load is rolled back.
func (s *sqliteImpl) Load(r io.Reader) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM params`); err != nil {
		return fmt.Errorf("clearing table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO params (key, value, version) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	idx, err := db.ReadSnapshot(r, func(rec db.Record) error {
		_, err := stmt.Exec(rec.Key, rec.Value, int64(rec.Version))
		return err
	})
	if err != nil {
		return err
	}

	if err := setWriteIdx(tx, idx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.currIndex.Store(idx)
	return nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns row count and payload size (exact) plus the SQLite page usage
func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	var entries, payload int64
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM params`).Scan(&entries, &payload)
	if err != nil {
		log.Errorf("reading table stats failed: %v", err)
	}

	var pageCount, pageSize int64
	_ = s.db.QueryRow(`PRAGMA page_count`).Scan(&pageCount)
	_ = s.db.QueryRow(`PRAGMA page_size`).Scan(&pageSize)

	path := s.path
	if path == "" {
		path = ":memory:"
	}

	meta := &struct {
		CurrentWriteIndex uint64  `json:"current_write_index"`
		Path              string  `json:"path"`
		FileBytes         int64   `json:"file_bytes"`
		Commits           int64   `json:"commits"`
		CommitMeanMs      float64 `json:"commit_mean_ms"`
		CommitP99Ms       float64 `json:"commit_p99_ms"`
		Conflicts         int64   `json:"conflicts"`
	}{
		CurrentWriteIndex: s.currIndex.Load(),
		Path:              path,
		FileBytes:         pageCount * pageSize,
		Commits:           s.commitTimer.Count(),
		CommitMeanMs:      s.commitTimer.Mean() / float64(time.Millisecond),
		CommitP99Ms:       s.commitTimer.Percentile(0.99) / float64(time.Millisecond),
		Conflicts:         s.conflicts.Count(),
	}

	return db.DatabaseInfo{
		SizeBytes:         int(payload) + 8*int(entries),
		Entries:           int(entries),
		DbType:            db.ImplSQLite,
		SupportedFeatures: []db.Feature{db.FeatureGet, db.FeatureScan, db.FeatureCommit, db.FeatureSave, db.FeatureLoad},
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeatureScan |
		db.FeatureCommit |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// WriteIdx returns the index of the last applied batch
func (s *sqliteImpl) WriteIdx() uint64 {
	return s.currIndex.Load()
}

// Close closes the database connection
func (s *sqliteImpl) Close() error {
	s.registry.UnregisterAll()
	return s.db.Close()
}
